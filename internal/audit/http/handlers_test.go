package audithttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

type stubTrailService struct {
	rows        []audit.Entry
	err         error
	lastFilters audit.TrailFilters
}

func (s *stubTrailService) AuditTrailFor(ctx context.Context, documentID string, filters audit.TrailFilters) accounting.Result {
	s.lastFilters = filters
	if s.err != nil {
		return accounting.Result{Message: s.err.Error(), Code: accounting.Code(s.err)}
	}
	return accounting.Result{Success: true, Payload: audit.Result{Rows: s.rows}}
}

func (s *stubTrailService) ExportAuditTrail(ctx context.Context, documentID string) ([]audit.Entry, error) {
	return s.rows, s.err
}

func newRouter(service TrailService) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), service).MountRoutes(r)
	return r
}

func get(h http.Handler, path, actor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTrailParsesFilters(t *testing.T) {
	service := &stubTrailService{}
	rr := get(newRouter(service), "/journals/doc-1/audit?action=post&page=2&page_size=500", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, audit.ActionPost, service.lastFilters.Action)
	require.Equal(t, 2, service.lastFilters.Page)
	require.Equal(t, maxPageSize, service.lastFilters.PageSize)
}

func TestTrailRejectsBadFilters(t *testing.T) {
	h := newRouter(&stubTrailService{})
	for _, query := range []string{"action=delete", "page=0", "page_size=abc"} {
		rr := get(h, "/journals/doc-1/audit?"+query, "")
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestTrailMapsUnknownDocument(t *testing.T) {
	rr := get(newRouter(&stubTrailService{err: shared.ErrJournalNotFound}), "/journals/missing/audit", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), accounting.CodeNotFound)
}

func TestExportWritesCSV(t *testing.T) {
	rows := []audit.Entry{{
		At:         time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		DocumentID: "doc-1",
		LedgerID:   "0L",
		Action:     audit.ActionPost,
		Actor:      "manager1",
		Amount:     decimal.NewFromInt(15000),
		Status:     audit.StatusSuccess,
	}}
	rr := get(newRouter(&stubTrailService{rows: rows}), "/journals/doc-1/audit/export", "auditor")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "audit-doc-1.csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "2025-03-15T10:00:00Z,doc-1,0L,POST,manager1,15000.00,SUCCESS,", lines[1])
}

func TestExportIsRateLimitedPerActor(t *testing.T) {
	h := newRouter(&stubTrailService{})
	for i := 0; i < rateLimit; i++ {
		require.Equal(t, http.StatusOK, get(h, "/journals/doc-1/audit/export", "auditor").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(h, "/journals/doc-1/audit/export", "auditor").Code)
	require.Equal(t, http.StatusOK, get(h, "/journals/doc-1/audit/export", "controller").Code)
	require.Equal(t, http.StatusOK, get(h, "/journals/doc-1/audit", "auditor").Code)
}
