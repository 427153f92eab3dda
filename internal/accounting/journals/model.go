package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentID identifies a journal entry: company code plus document number.
type DocumentID string

// NewDocumentID builds the identifier of a source document.
func NewDocumentID(companyID, number string) DocumentID {
	return DocumentID(fmt.Sprintf("%s-%s", companyID, number))
}

// DerivedDocumentID builds the identifier of the ledger-scoped copy of a source document.
func DerivedDocumentID(source DocumentID, ledgerID string) DocumentID {
	return DocumentID(fmt.Sprintf("%s_%s", source, ledgerID))
}

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPosted          Status = "POSTED"
)

// JournalEntry captures a document from draft to posting.
type JournalEntry struct {
	ID                   DocumentID    `json:"id"`
	CompanyID            string        `json:"company_id"`
	DocNumber            string        `json:"doc_number"`
	LedgerID             string        `json:"ledger_id"`
	SourceID             DocumentID    `json:"source_id"`
	Currency             string        `json:"currency"`
	FiscalYear           int           `json:"fiscal_year"`
	Period               int           `json:"period"`
	PostingDate          time.Time     `json:"posting_date"`
	Status               Status        `json:"status"`
	CreatedBy            string        `json:"created_by"`
	CreatedAt            time.Time     `json:"created_at"`
	PostedBy             string        `json:"posted_by"`
	PostedAt             *time.Time    `json:"posted_at,omitempty"`
	ParallelPosted       bool          `json:"parallel_posted"`
	ParallelLedgerCount  int           `json:"parallel_ledger_count"`
	ParallelSuccessCount int           `json:"parallel_success_count"`
	Lines                []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account. Lines are immutable once posted.
type JournalLine struct {
	LineNo      int               `json:"line_no"`
	AccountID   string            `json:"account_id"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Dimensions  map[string]string `json:"dimensions,omitempty"`
	// LedgerID tags the line to one ledger; empty means the leading ledger.
	LedgerID string `json:"ledger_id"`
}

// IsDerived reports whether the entry was generated by parallel distribution.
func (e JournalEntry) IsDerived() bool {
	return e.SourceID != ""
}

// IsPosted reports whether the entry already reached a ledger.
func (e JournalEntry) IsPosted() bool {
	return e.Status == StatusPosted || e.PostedAt != nil
}

// PostableLines returns the lines that belong to the entry's own ledger.
func (e JournalEntry) PostableLines() []JournalLine {
	out := make([]JournalLine, 0, len(e.Lines))
	for _, line := range e.Lines {
		if line.LedgerID == "" || line.LedgerID == e.LedgerID {
			out = append(out, line)
		}
	}
	return out
}

// Totals sums debit and credit of the given lines.
func Totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// AbsoluteTotal is the amount used to route approvals: the larger of total debits and credits.
func (e JournalEntry) AbsoluteTotal() decimal.Decimal {
	var debit, credit decimal.Decimal
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit.Abs())
		credit = credit.Add(line.Credit.Abs())
	}
	return decimal.Max(debit, credit)
}

// Clone returns a copy that shares no line or dimension storage with e.
func (e JournalEntry) Clone() JournalEntry {
	out := e
	if e.PostedAt != nil {
		at := *e.PostedAt
		out.PostedAt = &at
	}
	out.Lines = make([]JournalLine, len(e.Lines))
	for i, line := range e.Lines {
		if line.Dimensions != nil {
			dims := make(map[string]string, len(line.Dimensions))
			for k, v := range line.Dimensions {
				dims[k] = v
			}
			line.Dimensions = dims
		}
		out.Lines[i] = line
	}
	return out
}
