package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Document is the immutable header written once per (journal entry, ledger).
type Document struct {
	ID          uuid.UUID           `json:"id"`
	DocumentID  journals.DocumentID `json:"document_id"`
	SourceID    journals.DocumentID `json:"source_id"`
	CompanyID   string              `json:"company_id"`
	LedgerID    string              `json:"ledger_id"`
	Currency    string              `json:"currency"`
	FiscalYear  int                 `json:"fiscal_year"`
	Period      int                 `json:"period"`
	PostingDate time.Time           `json:"posting_date"`
	PostedBy    string              `json:"posted_by"`
	PostedAt    time.Time           `json:"posted_at"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Transaction mirrors one journal line attributed to a ledger.
type Transaction struct {
	PostingID   uuid.UUID         `json:"posting_id"`
	LineNo      int               `json:"line_no"`
	LedgerID    string            `json:"ledger_id"`
	AccountID   string            `json:"account_id"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Dimensions  map[string]string `json:"dimensions,omitempty"`
}

// Request asks the engine to post one document to one ledger.
type Request struct {
	DocumentID journals.DocumentID
	// LedgerID defaults to the ledger of the entry.
	LedgerID string
	Poster   shared.Actor
	// PostingDate defaults to the posting date of the entry.
	PostingDate time.Time
	// Derived is inserted in the same transaction before posting.
	Derived *journals.JournalEntry
}

// Result summarises a successful post.
type Result struct {
	DocumentID  journals.DocumentID `json:"document_id"`
	LedgerID    string              `json:"ledger_id"`
	PostingID   uuid.UUID           `json:"posting_id"`
	LinesPosted int                 `json:"lines_posted"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
	PostedAt    time.Time           `json:"posted_at"`
}

// Outcome pairs a batch request with its result or error.
type Outcome struct {
	DocumentID journals.DocumentID
	Result     Result
	Err        error
}
