package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

type approvalRepo struct{ s *Store }

func (r approvalRepo) WithTx(ctx context.Context, fn func(context.Context, approval.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, approvalTx{st: st})
	})
}

func (r approvalRepo) LevelTable(_ context.Context, companyID string) (approval.LevelTable, error) {
	return r.s.levelTable(companyID)
}

func (r approvalRepo) Workflow(_ context.Context, id string) (approval.WorkflowInstance, []approval.ApprovalStep, error) {
	var (
		wf    approval.WorkflowInstance
		steps []approval.ApprovalStep
		ok    bool
	)
	r.s.read(func(st *state) {
		wf, ok = st.workflows[id]
		steps = append([]approval.ApprovalStep(nil), st.steps[id]...)
	})
	if !ok {
		return approval.WorkflowInstance{}, nil, approval.ErrWorkflowNotFound
	}
	return wf, steps, nil
}

func (r approvalRepo) PendingSteps(_ context.Context, assignee string) ([]approval.PendingRow, error) {
	return r.pending(func(step approval.ApprovalStep) bool { return step.Assignee == assignee }), nil
}

func (r approvalRepo) OverdueSteps(_ context.Context, asOf time.Time) ([]approval.PendingRow, error) {
	return r.pending(func(step approval.ApprovalStep) bool { return step.TimeLimit.Before(asOf) }), nil
}

func (r approvalRepo) pending(match func(approval.ApprovalStep) bool) []approval.PendingRow {
	var out []approval.PendingRow
	r.s.read(func(st *state) {
		for id, wf := range st.workflows {
			if wf.Status != approval.WorkflowPending {
				continue
			}
			for _, step := range st.steps[id] {
				if step.Action == approval.StepPending && match(step) {
					out = append(out, approval.PendingRow{Step: step, Workflow: wf})
				}
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Workflow.CreatedAt.Equal(out[j].Workflow.CreatedAt) {
			return out[i].Workflow.CreatedAt.Before(out[j].Workflow.CreatedAt)
		}
		return out[i].Workflow.ID < out[j].Workflow.ID
	})
	return out
}

type approvalTx struct{ st *state }

func (t approvalTx) LockEntry(_ context.Context, id journals.DocumentID) (journals.JournalEntry, error) {
	return lockEntry(t.st, id)
}

func (t approvalTx) UpdateEntryStatus(_ context.Context, id journals.DocumentID, status journals.Status) error {
	return setEntryStatus(t.st, id, status)
}

func (t approvalTx) InsertWorkflow(_ context.Context, wf approval.WorkflowInstance, steps []approval.ApprovalStep) error {
	t.st.workflows[wf.ID] = wf
	t.st.steps[wf.ID] = append([]approval.ApprovalStep(nil), steps...)
	return nil
}

func (t approvalTx) LockWorkflow(_ context.Context, id string) (approval.WorkflowInstance, []approval.ApprovalStep, error) {
	wf, ok := t.st.workflows[id]
	if !ok {
		return approval.WorkflowInstance{}, nil, approval.ErrWorkflowNotFound
	}
	return wf, append([]approval.ApprovalStep(nil), t.st.steps[id]...), nil
}

func (t approvalTx) UpdateWorkflow(_ context.Context, wf approval.WorkflowInstance) error {
	if _, ok := t.st.workflows[wf.ID]; !ok {
		return approval.ErrWorkflowNotFound
	}
	t.st.workflows[wf.ID] = wf
	return nil
}

func (t approvalTx) UpdateSteps(_ context.Context, steps []approval.ApprovalStep) error {
	for _, step := range steps {
		current := t.st.steps[step.WorkflowID]
		for i := range current {
			if current[i].ID == step.ID {
				current[i] = step
			}
		}
	}
	return nil
}

func (t approvalTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	t.st.audit = append(t.st.audit, entry)
	return nil
}
