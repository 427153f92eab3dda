package journals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// LineInput describes a journal line of a draft.
type LineInput struct {
	AccountID   string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Dimensions  map[string]string
	LedgerID    string
}

// CreateDraftInput groups fields required to stage a journal entry.
type CreateDraftInput struct {
	CompanyID   string
	DocNumber   string
	LedgerID    string
	Currency    string
	FiscalYear  int
	Period      int
	PostingDate time.Time
	CreatedBy   string
	Lines       []LineInput
}

// Validate ensures the draft meets minimum criteria.
func (in CreateDraftInput) Validate(tolerance decimal.Decimal) error {
	switch {
	case strings.TrimSpace(in.CompanyID) == "":
		return &shared.LineError{Line: 0, Reason: "company required"}
	case strings.TrimSpace(in.DocNumber) == "":
		return &shared.LineError{Line: 0, Reason: "document number required"}
	case strings.TrimSpace(in.CreatedBy) == "":
		return shared.ErrActorRequired
	case in.FiscalYear <= 0 || in.Period < 1 || in.Period > 16:
		return &shared.LineError{Line: 0, Reason: "fiscal year and period required"}
	case in.PostingDate.IsZero():
		return &shared.LineError{Line: 0, Reason: "posting date required"}
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		no := idx + 1
		if strings.TrimSpace(line.AccountID) == "" {
			return &shared.LineError{Line: no, Reason: "missing account"}
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return &shared.LineError{Line: no, Reason: "negative amount"}
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return &shared.LineError{Line: no, Reason: "cannot be both debit and credit"}
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !shared.Balanced(debit, credit, shared.ToleranceOrDefault(tolerance)) {
		return shared.ErrUnbalanced
	}
	return nil
}
