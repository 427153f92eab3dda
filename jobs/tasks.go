package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalNotify delivers a pending-approval notice to one approver.
	TaskApprovalNotify = "approval:notify"
	// TaskApprovalOverdue re-notifies approvers whose steps passed their time limit.
	TaskApprovalOverdue = "approval:overdue"
	// TaskGLIntegrity checks posted entries and trial balances for imbalance.
	TaskGLIntegrity = "gl:integrity"
)

// ApprovalNotifyPayload describes one approver notice.
type ApprovalNotifyPayload struct {
	WorkflowID string          `json:"workflow_id"`
	DocumentID string          `json:"document_id"`
	CompanyID  string          `json:"company_id"`
	Assignee   string          `json:"assignee"`
	LevelName  string          `json:"level_name"`
	Amount     decimal.Decimal `json:"amount"`
	TimeLimit  time.Time       `json:"time_limit"`
	Reminder   bool            `json:"reminder,omitempty"`
}

func payloadFromNotification(n approval.Notification) ApprovalNotifyPayload {
	return ApprovalNotifyPayload{
		WorkflowID: n.WorkflowID,
		DocumentID: string(n.DocumentID),
		CompanyID:  n.CompanyID,
		Assignee:   n.Assignee,
		LevelName:  n.LevelName,
		Amount:     n.Amount,
		TimeLimit:  n.TimeLimit,
	}
}

func payloadFromPending(p approval.PendingApproval) ApprovalNotifyPayload {
	return ApprovalNotifyPayload{
		WorkflowID: p.WorkflowID,
		DocumentID: string(p.DocumentID),
		CompanyID:  p.CompanyID,
		Assignee:   p.Assignee,
		LevelName:  p.LevelName,
		Amount:     p.Amount,
		TimeLimit:  p.TimeLimit,
		Reminder:   true,
	}
}

// Notification converts the payload back into the approval notice.
func (p ApprovalNotifyPayload) Notification() approval.Notification {
	return approval.Notification{
		WorkflowID: p.WorkflowID,
		DocumentID: journals.DocumentID(p.DocumentID),
		CompanyID:  p.CompanyID,
		Assignee:   p.Assignee,
		LevelName:  p.LevelName,
		Amount:     p.Amount,
		TimeLimit:  p.TimeLimit,
	}
}

// NewApprovalNotifyTask constructs an Asynq task. The task ID makes a repeated
// enqueue for the same step a no-op.
func NewApprovalNotifyTask(payload ApprovalNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	id := "notify:" + payload.WorkflowID + ":" + payload.Assignee
	if payload.Reminder {
		id = "remind:" + payload.WorkflowID + ":" + payload.Assignee + ":" + time.Now().UTC().Format("2006010215")
	}
	return asynq.NewTask(TaskApprovalNotify, data, asynq.TaskID(id), asynq.MaxRetry(5)), nil
}

// GLIntegrityPayload bounds the integrity scan.
type GLIntegrityPayload struct {
	LookbackHours int `json:"lookback_hours"`
	Limit         int `json:"limit"`
}

// NewGLIntegrityTask constructs an Asynq task for the integrity check.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.MaxRetry(1)), nil
}

// NewApprovalOverdueTask constructs the overdue sweep task.
func NewApprovalOverdueTask() *asynq.Task {
	return asynq.NewTask(TaskApprovalOverdue, nil, asynq.MaxRetry(1))
}
