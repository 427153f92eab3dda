// Package audithttp serves the audit trail of GL documents.
package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	glhttp "github.com/odyssey-erp/odyssey-gl/internal/accounting/http"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
)

const maxPageSize = 50

// TrailService defines the contract for reading a document's audit trail.
type TrailService interface {
	AuditTrailFor(ctx context.Context, documentID string, filters audit.TrailFilters) accounting.Result
	ExportAuditTrail(ctx context.Context, documentID string) ([]audit.Entry, error)
}

// Handler menangani permintaan jejak audit.
type Handler struct {
	logger  *slog.Logger
	service TrailService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TrailService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	res := h.service.AuditTrailFor(r.Context(), chi.URLParam(r, "id"), filters)
	if !res.Success {
		h.respondFailure(w, res.Code, res.Message)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")
	rows, err := h.service.ExportAuditTrail(r.Context(), id)
	if err != nil {
		h.respondFailure(w, accounting.Code(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+id+".csv"))
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.String("document", id), slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TrailFilters, error) {
	q := r.URL.Query()
	action := audit.Action(strings.ToUpper(strings.TrimSpace(q.Get("action"))))
	if action != "" && !knownAction(action) {
		return audit.TrailFilters{}, validationError{field: "action"}
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TrailFilters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := 0
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TrailFilters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}
	return audit.TrailFilters{Action: action, Page: page, PageSize: pageSize}, nil
}

func knownAction(a audit.Action) bool {
	switch a {
	case audit.ActionCreate, audit.ActionSubmit, audit.ActionApprove, audit.ActionReject,
		audit.ActionWithdraw, audit.ActionPost, audit.ActionFanout:
		return true
	}
	return false
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, v.field))
		return
	}
	h.respondFailure(w, accounting.CodeInternal, err.Error())
}

func (h *Handler) respondFailure(w http.ResponseWriter, code, message string) {
	status := glhttp.StatusFor(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("audit trail", slog.String("code", code), slog.String("error", message))
		message = ""
	}
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Type:   "urn:odyssey:gl:" + strings.ToLower(code),
		Status: status,
		Detail: message,
		Code:   code,
	})
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
