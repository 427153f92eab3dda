package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

// DefaultTimeLimit is how long approvers have before a step is overdue.
const DefaultTimeLimit = 72 * time.Hour

// ApproverDirectory lists the users eligible to approve a level.
type ApproverDirectory interface {
	ApproversForLevel(ctx context.Context, companyID, levelID string) ([]string, error)
}

// Notifier tells an approver about a new step.
type Notifier interface {
	NotifyApprover(ctx context.Context, n Notification) error
}

// MetricsPort counts workflow transitions.
type MetricsPort interface {
	ObserveApproval(action, result string)
}

// Service drives the approval state machine of journal entries.
type Service struct {
	repo      Repository
	directory ApproverDirectory
	notifier  Notifier
	metrics   MetricsPort
	timeLimit time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the approval workflow.
func NewService(repo Repository, directory ApproverDirectory, notifier Notifier, metrics MetricsPort, timeLimit time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	return &Service{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		metrics:   metrics,
		timeLimit: timeLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Submit routes a draft to the approvers of its level.
func (s *Service) Submit(ctx context.Context, documentID journals.DocumentID, submitter shared.Actor) (WorkflowInstance, error) {
	if submitter.IsZero() || submitter.IsSystem() {
		return WorkflowInstance{}, shared.ErrActorRequired
	}
	var (
		wf    WorkflowInstance
		steps []ApprovalStep
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.LockEntry(ctx, documentID)
		if err != nil {
			return err
		}
		if entry.Status != journals.StatusDraft {
			return fmt.Errorf("%w: %s is %s", ErrAlreadySubmitted, documentID, entry.Status)
		}
		table, err := s.repo.LevelTable(ctx, entry.CompanyID)
		if err != nil {
			return err
		}
		amount := entry.AbsoluteTotal()
		level, fallback, err := table.Select(amount)
		if err != nil {
			return err
		}
		if fallback {
			s.logger.Warn("approval level fallback to highest level",
				slog.String("document", string(documentID)),
				slog.String("amount", amount.StringFixed(2)),
				slog.String("level", level.Name),
				slog.Int("version", table.Version()))
		}
		candidates, err := s.directory.ApproversForLevel(ctx, entry.CompanyID, level.ID)
		if err != nil {
			return err
		}
		approvers := eligible(candidates, submitter, entry.CreatedBy)
		if len(approvers) == 0 {
			return fmt.Errorf("%w: level %s", ErrNoApproversAvailable, level.Name)
		}

		now := s.now()
		wf = WorkflowInstance{
			ID:           ulid.Make().String(),
			DocumentID:   entry.ID,
			CompanyID:    entry.CompanyID,
			LevelID:      level.ID,
			LevelName:    level.Name,
			LevelVersion: table.Version(),
			Amount:       amount,
			Status:       WorkflowPending,
			SubmittedBy:  submitter.ID,
			CreatedAt:    now,
		}
		steps = make([]ApprovalStep, 0, len(approvers))
		for _, approver := range approvers {
			steps = append(steps, ApprovalStep{
				ID:         ulid.Make().String(),
				WorkflowID: wf.ID,
				Assignee:   approver,
				Action:     StepPending,
				TimeLimit:  now.Add(s.timeLimit),
			})
		}
		if err := tx.InsertWorkflow(ctx, wf, steps); err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, entry.ID, journals.StatusPendingApproval); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit.Stamp(audit.Entry{
			DocumentID: string(entry.ID),
			CompanyID:  entry.CompanyID,
			LedgerID:   entry.LedgerID,
			Action:     audit.ActionSubmit,
			Actor:      submitter.ID,
			Amount:     amount,
			Message:    fmt.Sprintf("routed to %s (%d approvers)", level.Name, len(steps)),
			Meta:       map[string]any{"workflow_id": wf.ID, "level_version": table.Version(), "fallback": fallback},
		}, now))
	})
	if err != nil {
		s.observe("submit", err)
		return WorkflowInstance{}, err
	}
	s.observe("submit", nil)
	s.logger.Info("journal submitted for approval",
		slog.String("document", string(documentID)),
		slog.String("workflow", wf.ID),
		slog.String("level", wf.LevelName))
	s.notify(ctx, wf, steps)
	return wf, nil
}

// Approve records the approver's decision. Self-approval is rejected before assignment is
// looked at.
func (s *Service) Approve(ctx context.Context, workflowID string, approver shared.Actor, comments string) (WorkflowInstance, error) {
	wf, err := s.decide(ctx, workflowID, approver, StepApproved, comments)
	s.observe("approve", err)
	return wf, err
}

// Reject closes the workflow and returns the entry as REJECTED. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, workflowID string, approver shared.Actor, reason string) (WorkflowInstance, error) {
	if strings.TrimSpace(reason) == "" {
		s.observe("reject", ErrReasonRequired)
		return WorkflowInstance{}, ErrReasonRequired
	}
	wf, err := s.decide(ctx, workflowID, approver, StepRejected, strings.TrimSpace(reason))
	s.observe("reject", err)
	return wf, err
}

func (s *Service) decide(ctx context.Context, workflowID string, approver shared.Actor, action StepAction, comments string) (WorkflowInstance, error) {
	if approver.IsZero() {
		return WorkflowInstance{}, shared.ErrActorRequired
	}
	var wf WorkflowInstance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, steps, err := tx.LockWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		switch current.Status {
		case WorkflowPending:
		case WorkflowApproved:
			return ErrAlreadyApproved
		default:
			return fmt.Errorf("%w: workflow is %s", ErrNotPending, current.Status)
		}
		entry, err := tx.LockEntry(ctx, current.DocumentID)
		if err != nil {
			return err
		}
		if approver.Is(entry.CreatedBy) {
			return shared.ErrSegregationOfDuties
		}
		idx := -1
		if !approver.IsSystem() {
			for i, step := range steps {
				if step.Assignee == approver.ID && step.Action == StepPending {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return ErrNotAssigned
		}

		now := s.now()
		for i := range steps {
			if steps[i].Action != StepPending {
				continue
			}
			if i == idx {
				steps[i].Action = action
				steps[i].Comments = comments
			} else {
				steps[i].Action = StepSkipped
			}
			acted := now
			steps[i].ActedAt = &acted
		}
		completed := now
		current.CompletedAt = &completed
		current.CompletedBy = approver.ID
		entryStatus := journals.StatusApproved
		auditAction := audit.ActionApprove
		current.Status = WorkflowApproved
		if action == StepRejected {
			current.Status = WorkflowRejected
			entryStatus = journals.StatusRejected
			auditAction = audit.ActionReject
		}
		if err := tx.UpdateSteps(ctx, steps); err != nil {
			return err
		}
		if err := tx.UpdateWorkflow(ctx, current); err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, entry.ID, entryStatus); err != nil {
			return err
		}
		wf = current
		return tx.AppendAudit(ctx, audit.Stamp(audit.Entry{
			DocumentID: string(entry.ID),
			CompanyID:  entry.CompanyID,
			LedgerID:   entry.LedgerID,
			Action:     auditAction,
			Actor:      approver.ID,
			Amount:     current.Amount,
			Message:    comments,
			Meta:       map[string]any{"workflow_id": current.ID, "level": current.LevelName},
		}, now))
	})
	if err != nil {
		return WorkflowInstance{}, err
	}
	s.logger.Info("approval decision recorded",
		slog.String("workflow", wf.ID),
		slog.String("document", string(wf.DocumentID)),
		slog.String("status", string(wf.Status)),
		slog.String("actor", approver.ID))
	return wf, nil
}

// Withdraw lets the submitter pull a pending entry back to DRAFT.
func (s *Service) Withdraw(ctx context.Context, workflowID string, actor shared.Actor) (WorkflowInstance, error) {
	if actor.IsZero() {
		return WorkflowInstance{}, shared.ErrActorRequired
	}
	var wf WorkflowInstance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, steps, err := tx.LockWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		if current.Status != WorkflowPending {
			return fmt.Errorf("%w: workflow is %s", ErrNotPending, current.Status)
		}
		if !actor.Is(current.SubmittedBy) {
			return ErrNotSubmitter
		}
		now := s.now()
		for i := range steps {
			if steps[i].Action == StepPending {
				acted := now
				steps[i].Action = StepWithdrawn
				steps[i].ActedAt = &acted
			}
		}
		completed := now
		current.Status = WorkflowWithdrawn
		current.CompletedAt = &completed
		current.CompletedBy = actor.ID
		if err := tx.UpdateSteps(ctx, steps); err != nil {
			return err
		}
		if err := tx.UpdateWorkflow(ctx, current); err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, current.DocumentID, journals.StatusDraft); err != nil {
			return err
		}
		wf = current
		return tx.AppendAudit(ctx, audit.Stamp(audit.Entry{
			DocumentID: string(current.DocumentID),
			CompanyID:  current.CompanyID,
			Action:     audit.ActionWithdraw,
			Actor:      actor.ID,
			Amount:     current.Amount,
			Meta:       map[string]any{"workflow_id": current.ID},
		}, now))
	})
	s.observe("withdraw", err)
	if err != nil {
		return WorkflowInstance{}, err
	}
	return wf, nil
}

// PendingFor lists the user's open steps, oldest submission first.
func (s *Service) PendingFor(ctx context.Context, user string) ([]PendingApproval, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, shared.ErrActorRequired
	}
	rows, err := s.repo.PendingSteps(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.toPending(rows), nil
}

// Overdue lists every open step past its time limit.
func (s *Service) Overdue(ctx context.Context) ([]PendingApproval, error) {
	rows, err := s.repo.OverdueSteps(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.toPending(rows), nil
}

// Lookup returns a workflow with its steps.
func (s *Service) Lookup(ctx context.Context, workflowID string) (WorkflowInstance, []ApprovalStep, error) {
	return s.repo.Workflow(ctx, workflowID)
}

func (s *Service) toPending(rows []PendingRow) []PendingApproval {
	now := s.now()
	out := make([]PendingApproval, 0, len(rows))
	for _, row := range rows {
		out = append(out, PendingApproval{
			WorkflowID:  row.Workflow.ID,
			StepID:      row.Step.ID,
			DocumentID:  row.Workflow.DocumentID,
			CompanyID:   row.Workflow.CompanyID,
			LevelName:   row.Workflow.LevelName,
			Amount:      row.Workflow.Amount,
			SubmittedBy: row.Workflow.SubmittedBy,
			SubmittedAt: row.Workflow.CreatedAt,
			Assignee:    row.Step.Assignee,
			TimeLimit:   row.Step.TimeLimit,
			IsOverdue:   row.Step.TimeLimit.Before(now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].WorkflowID < out[j].WorkflowID
	})
	return out
}

func (s *Service) notify(ctx context.Context, wf WorkflowInstance, steps []ApprovalStep) {
	if s.notifier == nil {
		return
	}
	for _, step := range steps {
		err := s.notifier.NotifyApprover(ctx, Notification{
			WorkflowID: wf.ID,
			DocumentID: wf.DocumentID,
			CompanyID:  wf.CompanyID,
			Assignee:   step.Assignee,
			LevelName:  wf.LevelName,
			Amount:     wf.Amount,
			TimeLimit:  step.TimeLimit,
		})
		if err != nil {
			s.logger.Warn("approver notification failed",
				slog.String("workflow", wf.ID),
				slog.String("assignee", step.Assignee),
				slog.Any("error", err))
		}
	}
}

func (s *Service) observe(action string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveApproval(action, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrSegregationOfDuties):
		return "segregation"
	case errors.Is(err, ErrAlreadyApproved), errors.Is(err, ErrAlreadySubmitted):
		return "duplicate"
	case errors.Is(err, ErrNoApproversAvailable):
		return "no_approvers"
	case errors.Is(err, ErrNotAssigned), errors.Is(err, ErrNotSubmitter):
		return "forbidden"
	default:
		return "error"
	}
}

// eligible removes the submitter, the author and duplicates from the directory answer.
func eligible(candidates []string, submitter shared.Actor, author string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || submitter.Is(c) || c == author {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
