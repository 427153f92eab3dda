package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// Enqueuer submits approval notices to the queue.
type Enqueuer interface {
	EnqueueApprovalNotify(ctx context.Context, payload ApprovalNotifyPayload) error
}

// QueueNotifier implements approval.Notifier by enqueueing one task per approver.
type QueueNotifier struct {
	queue Enqueuer
}

// NewQueueNotifier wraps the queue client.
func NewQueueNotifier(queue Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

var _ approval.Notifier = (*QueueNotifier)(nil)

// NotifyApprover enqueues the notice; delivery happens on the worker.
func (n *QueueNotifier) NotifyApprover(ctx context.Context, note approval.Notification) error {
	if n == nil || n.queue == nil {
		return errors.New("jobs: queue not configured")
	}
	return n.queue.EnqueueApprovalNotify(ctx, payloadFromNotification(note))
}

// Deliverer hands a notice to the approver's channel.
type Deliverer interface {
	Deliver(ctx context.Context, payload ApprovalNotifyPayload) error
}

// LogDeliverer writes notices to the log. It stands in until a mail channel exists.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver logs the notice.
func (d LogDeliverer) Deliver(_ context.Context, payload ApprovalNotifyPayload) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("approval notice",
		slog.String("assignee", payload.Assignee),
		slog.String("workflow", payload.WorkflowID),
		slog.String("document", payload.DocumentID),
		slog.String("level", payload.LevelName),
		slog.String("amount", payload.Amount.String()),
		slog.Time("due", payload.TimeLimit),
		slog.Bool("reminder", payload.Reminder))
	return nil
}

// ApprovalNotifyHandler processes TaskApprovalNotify tasks.
type ApprovalNotifyHandler struct {
	deliverer Deliverer
	metrics   *jobmetrics.Metrics
}

// NewApprovalNotifyHandler builds the handler; a nil deliverer logs notices.
func NewApprovalNotifyHandler(deliverer Deliverer, metrics *jobmetrics.Metrics) *ApprovalNotifyHandler {
	if deliverer == nil {
		deliverer = LogDeliverer{}
	}
	return &ApprovalNotifyHandler{deliverer: deliverer, metrics: metrics}
}

// ProcessTask satisfies asynq.Handler.
func (h *ApprovalNotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskApprovalNotify)
	var payload ApprovalNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(errors.Join(err, asynq.SkipRetry))
	}
	if payload.Assignee == "" || payload.WorkflowID == "" {
		return tracker.End(errors.Join(errors.New("jobs: notice without assignee or workflow"), asynq.SkipRetry))
	}
	err := h.deliverer.Deliver(ctx, payload)
	h.metrics.ObserveNotice(payload.Reminder, err)
	return tracker.End(err)
}

// OverdueSource lists steps past their time limit.
type OverdueSource interface {
	Overdue(ctx context.Context) ([]approval.PendingApproval, error)
}

// OverdueSweeper re-notifies approvers of overdue steps.
type OverdueSweeper struct {
	source  OverdueSource
	queue   Enqueuer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewOverdueSweeper wires the sweeper.
func NewOverdueSweeper(source OverdueSource, queue Enqueuer, metrics *jobmetrics.Metrics, logger *slog.Logger) *OverdueSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueSweeper{source: source, queue: queue, metrics: metrics, logger: logger}
}

// Sweep enqueues one reminder per overdue step and returns how many were sent.
func (s *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	overdue, err := s.source.Overdue(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.SetOverdue(len(overdue))
	sent := 0
	for _, item := range overdue {
		if err := s.queue.EnqueueApprovalNotify(ctx, payloadFromPending(item)); err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) {
				continue
			}
			s.logger.Warn("overdue reminder enqueue failed",
				slog.String("workflow", item.WorkflowID),
				slog.String("assignee", item.Assignee),
				slog.Any("error", err))
			continue
		}
		sent++
	}
	if len(overdue) > 0 {
		s.logger.Info("overdue approvals swept",
			slog.Int("overdue", len(overdue)),
			slog.Int("reminded", sent),
			slog.Time("at", time.Now().UTC()))
	}
	return sent, nil
}

// ProcessTask satisfies asynq.Handler.
func (s *OverdueSweeper) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics.Track(TaskApprovalOverdue)
	_, err := s.Sweep(ctx)
	return tracker.End(err)
}
