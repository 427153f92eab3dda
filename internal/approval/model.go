package approval

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
)

// WorkflowStatus enumerates workflow instance states.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "PENDING"
	WorkflowApproved  WorkflowStatus = "APPROVED"
	WorkflowRejected  WorkflowStatus = "REJECTED"
	WorkflowWithdrawn WorkflowStatus = "WITHDRAWN"
)

// StepAction enumerates approval step states.
type StepAction string

const (
	StepPending  StepAction = "PENDING"
	StepApproved StepAction = "APPROVED"
	StepRejected StepAction = "REJECTED"
	// StepSkipped closes the sibling steps once another approver decided.
	StepSkipped StepAction = "SKIPPED"
	// StepWithdrawn closes every step when the submitter withdraws.
	StepWithdrawn StepAction = "WITHDRAWN"
)

// WorkflowInstance is created on each submission of an entry.
type WorkflowInstance struct {
	ID           string              `json:"id"`
	DocumentID   journals.DocumentID `json:"document_id"`
	CompanyID    string              `json:"company_id"`
	LevelID      string              `json:"level_id"`
	LevelName    string              `json:"level_name"`
	LevelVersion int                 `json:"level_version"`
	Amount       decimal.Decimal     `json:"amount"`
	Status       WorkflowStatus      `json:"status"`
	SubmittedBy  string              `json:"submitted_by"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CompletedBy  string              `json:"completed_by"`
}

// ApprovalStep is one assignee's slot on a workflow. The first actor wins.
type ApprovalStep struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Assignee   string     `json:"assignee"`
	Action     StepAction `json:"action"`
	TimeLimit  time.Time  `json:"time_limit"`
	ActedAt    *time.Time `json:"acted_at,omitempty"`
	Comments   string     `json:"comments"`
}

// PendingRow joins a pending step with its workflow.
type PendingRow struct {
	Step     ApprovalStep
	Workflow WorkflowInstance
}

// PendingApproval is one item of an approver's work queue.
type PendingApproval struct {
	WorkflowID  string              `json:"workflow_id"`
	StepID      string              `json:"step_id"`
	DocumentID  journals.DocumentID `json:"document_id"`
	CompanyID   string              `json:"company_id"`
	LevelName   string              `json:"level_name"`
	Amount      decimal.Decimal     `json:"amount"`
	SubmittedBy string              `json:"submitted_by"`
	SubmittedAt time.Time           `json:"submitted_at"`
	Assignee    string              `json:"assignee"`
	TimeLimit   time.Time           `json:"time_limit"`
	IsOverdue   bool                `json:"is_overdue"`
}

// Notification is sent to each approver after submission.
type Notification struct {
	WorkflowID string
	DocumentID journals.DocumentID
	CompanyID  string
	Assignee   string
	LevelName  string
	Amount     decimal.Decimal
	TimeLimit  time.Time
}
