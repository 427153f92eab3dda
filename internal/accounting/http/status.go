package http

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
)

var statusByCode = map[string]int{
	accounting.CodeValidation:             http.StatusBadRequest,
	accounting.CodeUnbalanced:             http.StatusUnprocessableEntity,
	accounting.CodeUnknownAccount:         http.StatusUnprocessableEntity,
	accounting.CodePeriodClosed:           http.StatusUnprocessableEntity,
	accounting.CodeReasonRequired:         http.StatusUnprocessableEntity,
	accounting.CodeDerivationUnbalanced:   http.StatusUnprocessableEntity,
	accounting.CodeNoLinesGenerated:       http.StatusUnprocessableEntity,
	accounting.CodeNoApprovers:            http.StatusUnprocessableEntity,
	accounting.CodeSegregationOfDuties:    http.StatusForbidden,
	accounting.CodeNotAssigned:            http.StatusForbidden,
	accounting.CodeNotSubmitter:           http.StatusForbidden,
	accounting.CodeNotFound:               http.StatusNotFound,
	accounting.CodeNotApproved:            http.StatusConflict,
	accounting.CodeNotPosted:              http.StatusConflict,
	accounting.CodeAlreadyPosted:          http.StatusConflict,
	accounting.CodeAlreadyApproved:        http.StatusConflict,
	accounting.CodeAlreadySubmitted:       http.StatusConflict,
	accounting.CodeNotPending:             http.StatusConflict,
	accounting.CodeDuplicate:              http.StatusConflict,
	accounting.CodeInvalidStatus:          http.StatusConflict,
	accounting.CodeBusy:                   http.StatusConflict,
	accounting.CodeTranslationUnavailable: http.StatusServiceUnavailable,
	accounting.CodeTimeout:                http.StatusGatewayTimeout,
	accounting.CodeConfiguration:          http.StatusInternalServerError,
	accounting.CodeInternal:               http.StatusInternalServerError,
}

// StatusFor maps a failure code to its HTTP status.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
