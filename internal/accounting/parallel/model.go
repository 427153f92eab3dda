package parallel

import (
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
)

// TargetOutcome records what happened to one parallel ledger of a source document.
type TargetOutcome struct {
	LedgerID            string              `json:"ledger_id"`
	DocumentID          journals.DocumentID `json:"document_id"`
	Success             bool                `json:"success"`
	AlreadyPosted       bool                `json:"already_posted"`
	LinesPosted         int                 `json:"lines_posted"`
	TranslationsApplied int                 `json:"translations_applied"`
	RewritesApplied     int                 `json:"rewrites_applied"`
	Error               string              `json:"error"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// Report is the per-ledger view of a fanout.
type Report struct {
	DocumentID   journals.DocumentID `json:"document_id"`
	Distributed  bool                `json:"distributed"`
	LedgerCount  int                 `json:"ledger_count"`
	SuccessCount int                 `json:"success_count"`
	Targets      []TargetOutcome     `json:"targets,omitempty"`
}

// Complete reports whether every parallel ledger received the document.
func (r Report) Complete() bool {
	return r.SuccessCount == r.LedgerCount
}

// Partial reports whether some but not all parallel ledgers failed.
func (r Report) Partial() bool {
	return r.SuccessCount > 0 && r.SuccessCount < r.LedgerCount
}
