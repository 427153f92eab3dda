package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	glhttp "github.com/odyssey-erp/odyssey-gl/internal/accounting/http"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-gl/internal/audit/http"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/memstore"
)

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.SeedDemo(2025))
	auditSvc := audit.NewService(store.Audit(), nil)
	poster := posting.NewEngine(store.Postings(), store.Accounts(), store.Periods(), decimal.Zero, nil, nil)
	translator := fx.NewService(fx.StaticRates{"USD/EUR": decimal.RequireFromString("0.92")}, nil, fx.BreakerConfig{}, nil)
	svc := accounting.NewService(accounting.Deps{
		Journals:  journals.NewService(store.Journals(), store.Ledgers(), decimal.Zero, nil),
		Approvals: approval.NewService(store.Approvals(), store.Approvers(), nil, nil, 0, nil),
		Poster:    poster,
		Fanout: parallel.NewEngine(parallel.Deps{
			Journals:   store.Journals(),
			Ledgers:    store.Ledgers(),
			Accounts:   store.Accounts(),
			Translator: translator,
			Poster:     poster,
			Outcomes:   store.Outcomes(),
			Audit:      auditSvc,
		}, parallel.Config{}, nil),
		Balances: store.Balances(),
		Audit:    auditSvc,
	}, accounting.Options{}, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Route("/api/gl", func(r chi.Router) {
		glhttp.NewHandler(logger, svc, 1000).MountRoutes(r)
		audithttp.NewHandler(logger, svc).MountRoutes(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set(glhttp.ActorHeader, actor)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p), rr.Body.String())
	return p
}

const draftBody = `{
	"company_id": "1000",
	"doc_number": "JV-7",
	"fiscal_year": 2025,
	"period": 3,
	"posting_date": "2025-03-15",
	"lines": [
		{"account_id": "500001", "debit": "15000"},
		{"account_id": "100001", "credit": "15000"}
	]
}`

func TestApproveFlowOverHTTP(t *testing.T) {
	h := newRouter(t)

	rr := do(t, h, http.MethodPost, "/api/gl/journals", "userA", draftBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	docID := decodeEnvelope(t, rr).Payload["id"].(string)
	require.Equal(t, "1000-JV-7", docID)

	rr = do(t, h, http.MethodPost, "/api/gl/journals/"+docID+"/submit", "userA", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	wf := decodeEnvelope(t, rr).Payload
	require.Equal(t, "Manager", wf["level_name"])
	workflowID := wf["id"].(string)

	rr = do(t, h, http.MethodGet, "/api/gl/approvals/pending", "manager2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), workflowID)

	rr = do(t, h, http.MethodPost, "/api/gl/workflows/"+workflowID+"/approve", "manager2", `{"comments":"ok"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeEnvelope(t, rr).Payload
	require.Equal(t, accounting.OutcomeApprovedAndPosted, out["outcome"])
	posted := out["posting"].(map[string]any)
	require.EqualValues(t, 2, posted["lines_posted"])
	require.Equal(t, "0L", posted["ledger_id"])
	require.Equal(t, "APPROVED", out["workflow"].(map[string]any)["status"])
	require.NotContains(t, rr.Body.String(), `"LedgerID"`)

	rr = do(t, h, http.MethodPost, "/api/gl/journals/"+docID+"/post", "manager2", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, accounting.CodeAlreadyPosted, decodeProblem(t, rr).Code)

	rr = do(t, h, http.MethodGet, "/api/gl/journals/"+docID+"/parallel", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 2, decodeEnvelope(t, rr).Payload["success_count"])

	rr = do(t, h, http.MethodGet, "/api/gl/balances/1000/2L/100001?year=2025&period=3", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "13800", decodeEnvelope(t, rr).Payload["period_credit"])

	rr = do(t, h, http.MethodGet, "/api/gl/balances/1000/0L/500001?year=2025&from=1&to=3", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/gl/trial-balance/1000/0L?year=2025&period=3", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, decodeEnvelope(t, rr).Message, "difference 0.00")

	rr = do(t, h, http.MethodGet, "/api/gl/journals/"+docID+"/audit?action=post", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/gl/journals/"+docID+"/audit/export", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("At,Document,Ledger,Action")))
	require.Contains(t, rr.Body.String(), "FANOUT")
}

func TestSelfApprovalIsForbidden(t *testing.T) {
	h := newRouter(t)
	body := strings.Replace(draftBody, "JV-7", "JV-8", 1)
	rr := do(t, h, http.MethodPost, "/api/gl/journals", "manager1", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	docID := decodeEnvelope(t, rr).Payload["id"].(string)

	rr = do(t, h, http.MethodPost, "/api/gl/journals/"+docID+"/submit", "userA", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	workflowID := decodeEnvelope(t, rr).Payload["id"].(string)

	rr = do(t, h, http.MethodPost, "/api/gl/workflows/"+workflowID+"/approve", "manager1", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, accounting.CodeSegregationOfDuties, decodeProblem(t, rr).Code)

	rr = do(t, h, http.MethodPost, "/api/gl/workflows/"+workflowID+"/reject", "manager2", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, accounting.CodeReasonRequired, decodeProblem(t, rr).Code)
}

func TestRequestValidation(t *testing.T) {
	h := newRouter(t)

	rr := do(t, h, http.MethodPost, "/api/gl/journals", "", draftBody)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/gl/journals", "userA", `{"company_id":"1000"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, decodeProblem(t, rr).Detail, "DocNumber")

	rr = do(t, h, http.MethodPost, "/api/gl/journals", "userA", `{"bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	unbalanced := strings.Replace(draftBody, `"credit": "15000"`, `"credit": "14000"`, 1)
	rr = do(t, h, http.MethodPost, "/api/gl/journals", "userA", unbalanced)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, accounting.CodeUnbalanced, decodeProblem(t, rr).Code)

	rr = do(t, h, http.MethodPost, "/api/gl/journals/post-batch", "userA", `{"document_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/gl/journals/1000-NOPE", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, accounting.CodeNotFound, decodeProblem(t, rr).Code)

	rr = do(t, h, http.MethodGet, "/api/gl/trial-balance/1000/0L?year=2025", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/gl/balances/1000/0L/500001?year=2025&from=5&to=2", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, accounting.CodeValidation, decodeProblem(t, rr).Code)
}

func TestStatusForUnknownCode(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, glhttp.StatusFor("SOMETHING_NEW"))
	require.Equal(t, http.StatusServiceUnavailable, glhttp.StatusFor(accounting.CodeTranslationUnavailable))
}
