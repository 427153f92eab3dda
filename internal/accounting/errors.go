package accounting

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/lock"
)

// Stable failure codes carried by Result and the HTTP problem responses.
const (
	CodeValidation             = "VALIDATION"
	CodeUnbalanced             = "UNBALANCED"
	CodeUnknownAccount         = "UNKNOWN_ACCOUNT"
	CodePeriodClosed           = "PERIOD_CLOSED"
	CodeNotApproved            = "NOT_APPROVED"
	CodeNotPosted              = "NOT_POSTED"
	CodeSegregationOfDuties    = "SEGREGATION_OF_DUTIES"
	CodeAlreadyPosted          = "ALREADY_POSTED"
	CodeAlreadyApproved        = "ALREADY_APPROVED"
	CodeAlreadySubmitted       = "ALREADY_SUBMITTED"
	CodeNotPending             = "NOT_PENDING"
	CodeNoApprovers            = "NO_APPROVERS"
	CodeNotAssigned            = "NOT_ASSIGNED"
	CodeNotSubmitter           = "NOT_SUBMITTER"
	CodeReasonRequired         = "REASON_REQUIRED"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicate              = "DUPLICATE"
	CodeInvalidStatus          = "INVALID_STATUS"
	CodeDerivationUnbalanced   = "DERIVATION_UNBALANCED"
	CodeNoLinesGenerated       = "NO_LINES_GENERATED"
	CodeTranslationUnavailable = "TRANSLATION_UNAVAILABLE"
	CodeConfiguration          = "CONFIGURATION"
	CodeBusy                   = "BUSY"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{shared.ErrUnbalanced, CodeUnbalanced},
	{shared.ErrUnknownAccount, CodeUnknownAccount},
	{shared.ErrPeriodClosed, CodePeriodClosed},
	{shared.ErrNotApproved, CodeNotApproved},
	{shared.ErrNotPosted, CodeNotPosted},
	{shared.ErrSegregationOfDuties, CodeSegregationOfDuties},
	{shared.ErrAlreadyPosted, CodeAlreadyPosted},
	{approval.ErrAlreadyApproved, CodeAlreadyApproved},
	{approval.ErrAlreadySubmitted, CodeAlreadySubmitted},
	{approval.ErrNotPending, CodeNotPending},
	{approval.ErrNoApproversAvailable, CodeNoApprovers},
	{approval.ErrNotAssigned, CodeNotAssigned},
	{approval.ErrNotSubmitter, CodeNotSubmitter},
	{approval.ErrReasonRequired, CodeReasonRequired},
	{shared.ErrJournalNotFound, CodeNotFound},
	{shared.ErrBalanceNotFound, CodeNotFound},
	{shared.ErrLedgerNotFound, CodeNotFound},
	{approval.ErrWorkflowNotFound, CodeNotFound},
	{shared.ErrDuplicateDocument, CodeDuplicate},
	{shared.ErrInvalidStatus, CodeInvalidStatus},
	{shared.ErrDerivationUnbalanced, CodeDerivationUnbalanced},
	{shared.ErrNoLinesGenerated, CodeNoLinesGenerated},
	{fx.ErrTranslationUnavailable, CodeTranslationUnavailable},
	{shared.ErrLeadingLedgerMissing, CodeConfiguration},
	{approval.ErrNoLevels, CodeConfiguration},
	{approval.ErrOverlappingLevels, CodeConfiguration},
	{lock.ErrNotObtained, CodeBusy},
	{context.DeadlineExceeded, CodeTimeout},
	{shared.ErrValidation, CodeValidation},
}

// Code maps an error to its stable failure code. Specific sentinels win over ErrValidation.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
