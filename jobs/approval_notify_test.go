package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/approval"
)

type recordingQueue struct {
	payloads []ApprovalNotifyPayload
	fail     map[string]error
}

func (q *recordingQueue) EnqueueApprovalNotify(_ context.Context, payload ApprovalNotifyPayload) error {
	if err := q.fail[payload.Assignee]; err != nil {
		return err
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

type recordingDeliverer struct {
	delivered []ApprovalNotifyPayload
}

func (d *recordingDeliverer) Deliver(_ context.Context, payload ApprovalNotifyPayload) error {
	d.delivered = append(d.delivered, payload)
	return nil
}

type stubOverdue []approval.PendingApproval

func (s stubOverdue) Overdue(context.Context) ([]approval.PendingApproval, error) {
	return s, nil
}

func TestQueueNotifierEnqueuesNotice(t *testing.T) {
	queue := &recordingQueue{}
	notifier := NewQueueNotifier(queue)
	due := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)

	err := notifier.NotifyApprover(context.Background(), approval.Notification{
		WorkflowID: "wf-1",
		DocumentID: "1000-42",
		CompanyID:  "1000",
		Assignee:   "manager1",
		LevelName:  "Manager",
		Amount:     decimal.NewFromInt(15000),
		TimeLimit:  due,
	})
	require.NoError(t, err)
	require.Len(t, queue.payloads, 1)
	require.Equal(t, "manager1", queue.payloads[0].Assignee)
	require.Equal(t, "1000-42", queue.payloads[0].DocumentID)
	require.False(t, queue.payloads[0].Reminder)

	var missing *QueueNotifier
	require.Error(t, missing.NotifyApprover(context.Background(), approval.Notification{}))
}

func TestApprovalNotifyHandlerDelivers(t *testing.T) {
	deliverer := &recordingDeliverer{}
	handler := NewApprovalNotifyHandler(deliverer, nil)
	task, err := NewApprovalNotifyTask(ApprovalNotifyPayload{
		WorkflowID: "wf-1",
		DocumentID: "1000-42",
		Assignee:   "manager2",
		Amount:     decimal.RequireFromString("15000.50"),
	})
	require.NoError(t, err)
	require.Equal(t, TaskApprovalNotify, task.Type())

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	require.Len(t, deliverer.delivered, 1)
	require.True(t, deliverer.delivered[0].Amount.Equal(decimal.RequireFromString("15000.50")))
	require.Equal(t, "1000-42", string(deliverer.delivered[0].Notification().DocumentID))
}

func TestApprovalNotifyHandlerSkipsBadPayload(t *testing.T) {
	handler := NewApprovalNotifyHandler(&recordingDeliverer{}, nil)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TaskApprovalNotify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = handler.ProcessTask(context.Background(), asynq.NewTask(TaskApprovalNotify, []byte(`{"workflow_id":"wf-1"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOverdueSweeperRemindsEachStep(t *testing.T) {
	queue := &recordingQueue{fail: map[string]error{"director1": errors.New("redis down")}}
	source := stubOverdue{
		{WorkflowID: "wf-1", StepID: "s-1", Assignee: "manager1", IsOverdue: true},
		{WorkflowID: "wf-1", StepID: "s-2", Assignee: "manager2", IsOverdue: true},
		{WorkflowID: "wf-2", StepID: "s-3", Assignee: "director1", IsOverdue: true},
	}
	sweeper := NewOverdueSweeper(source, queue, nil, nil)

	sent, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Len(t, queue.payloads, 2)
	for _, p := range queue.payloads {
		require.True(t, p.Reminder)
	}
	require.NoError(t, sweeper.ProcessTask(context.Background(), NewApprovalOverdueTask()))
}
