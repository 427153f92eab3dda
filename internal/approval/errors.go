package approval

import "errors"

var (
	// ErrAlreadySubmitted indicates the entry is not a draft.
	ErrAlreadySubmitted = errors.New("approval: entry already submitted")
	// ErrNotPending indicates the workflow no longer accepts decisions.
	ErrNotPending = errors.New("approval: workflow is not pending")
	// ErrAlreadyApproved is the idempotency guard of approve.
	ErrAlreadyApproved = errors.New("approval: workflow already approved")
	// ErrNoApproversAvailable indicates nobody but the submitter can approve the level.
	ErrNoApproversAvailable = errors.New("approval: no approvers available")
	// ErrNotAssigned indicates the approver holds no pending step of the workflow.
	ErrNotAssigned = errors.New("approval: approver not assigned")
	// ErrReasonRequired indicates a rejection without reason.
	ErrReasonRequired = errors.New("approval: rejection reason required")
	// ErrWorkflowNotFound indicates missing workflow instance.
	ErrWorkflowNotFound = errors.New("approval: workflow not found")
	// ErrNotSubmitter indicates somebody other than the submitter tried to withdraw.
	ErrNotSubmitter = errors.New("approval: only the submitter can withdraw")
	// ErrOverlappingLevels indicates a level table with overlapping amount ranges.
	ErrOverlappingLevels = errors.New("approval: level ranges overlap")
	// ErrNoLevels indicates a company without approval levels.
	ErrNoLevels = errors.New("approval: no approval levels configured")
)
