package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every input or invariant failure.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", ErrValidation)
	// ErrZeroAmount indicates a journal without any amount.
	ErrZeroAmount = fmt.Errorf("%w: journal amount must not be zero", ErrValidation)
	// ErrUnknownAccount indicates a line references an account missing from the chart.
	ErrUnknownAccount = fmt.Errorf("%w: account does not exist", ErrValidation)
	// ErrPeriodClosed indicates the fiscal period does not accept postings.
	ErrPeriodClosed = fmt.Errorf("%w: period is not open for posting", ErrValidation)
	// ErrLedgerMismatch indicates the requested ledger is not the ledger of the document.
	ErrLedgerMismatch = fmt.Errorf("%w: document does not belong to ledger", ErrValidation)
	// ErrNotApproved indicates the entry has not cleared approval.
	ErrNotApproved = fmt.Errorf("%w: journal entry is not approved", ErrValidation)
	// ErrNotPosted indicates the source entry has not been posted yet.
	ErrNotPosted = fmt.Errorf("%w: journal entry is not posted", ErrValidation)
	// ErrActorRequired indicates an operation without an acting user.
	ErrActorRequired = fmt.Errorf("%w: actor required", ErrValidation)

	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrDuplicateDocument indicates the document number is already taken.
	ErrDuplicateDocument = errors.New("accounting: document already exists")
	// ErrAlreadyPosted is the idempotency guard of the posting engine.
	ErrAlreadyPosted = errors.New("accounting: document already posted to ledger")
	// ErrSegregationOfDuties indicates the author tried to approve or post their own document.
	ErrSegregationOfDuties = errors.New("accounting: segregation of duties violation")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")

	// ErrLedgerNotFound indicates the ledger is not configured for the company.
	ErrLedgerNotFound = errors.New("accounting: ledger not found")
	// ErrLeadingLedgerMissing indicates a company without exactly one leading ledger.
	ErrLeadingLedgerMissing = errors.New("accounting: company requires exactly one leading ledger")
	// ErrDerivationUnbalanced indicates derived lines for a parallel ledger no longer balance.
	ErrDerivationUnbalanced = errors.New("accounting: derived lines do not balance")
	// ErrNoLinesGenerated indicates every line was excluded for a parallel ledger.
	ErrNoLinesGenerated = errors.New("accounting: no lines generated for ledger")
	// ErrBalanceNotFound indicates no postings exist for the balance key.
	ErrBalanceNotFound = errors.New("accounting: balance not found")
)

// LineError points a validation failure at a single journal line.
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("accounting: line %d %s", e.Line, e.Reason)
}

// Unwrap lets callers match the failure with errors.Is(err, ErrValidation).
func (e *LineError) Unwrap() error {
	return ErrValidation
}
