// Package http exposes the GL operations as a JSON API.
package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
)

// ActorHeader names the authenticated user; an upstream gateway sets it.
const ActorHeader = "X-Actor-ID"

// Handler wires the GL endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *accounting.Service
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the GL handler. Writes are limited per actor.
func NewHandler(logger *slog.Logger, service *accounting.Service, writesPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if writesPerMinute <= 0 {
		writesPerMinute = 120
	}
	limiter := httprate.Limit(writesPerMinute, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			return "actor:" + actor, nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  validator.New(),
		rateLimit: limiter,
	}
}

// MountRoutes attaches the GL routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals/{id}", h.getJournal)
	r.Get("/journals/{id}/parallel", h.parallelStatus)
	r.Get("/approvals/pending", h.pending)
	r.Get("/balances/{company}/{ledger}/{account}", h.balance)
	r.Get("/trial-balance/{company}/{ledger}", h.trialBalance)

	r.Group(func(w chi.Router) {
		w.Use(h.rateLimit)
		w.Post("/journals", h.createDraft)
		w.Post("/journals/post-batch", h.postBatch)
		w.Post("/journals/{id}/submit", h.submit)
		w.Post("/journals/{id}/post", h.post)
		w.Post("/journals/{id}/fanout", h.fanout)
		w.Post("/workflows/{id}/approve", h.approve)
		w.Post("/workflows/{id}/reject", h.reject)
		w.Post("/workflows/{id}/withdraw", h.withdraw)
	})
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createDraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput(actor)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: posting_date: %v", httpx.ErrValidation, err))
		return
	}
	h.respond(w, h.service.CreateDraft(r.Context(), in), http.StatusCreated)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.Journal(r.Context(), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w, h.service.Submit(r.Context(), chi.URLParam(r, "id"), actor), http.StatusCreated)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respond(w, h.service.Approve(r.Context(), chi.URLParam(r, "id"), actor, req.Comments), http.StatusOK)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.respond(w, h.service.Reject(r.Context(), chi.URLParam(r, "id"), actor, req.Reason), http.StatusOK)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w, h.service.Withdraw(r.Context(), chi.URLParam(r, "id"), actor), http.StatusOK)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w, h.service.Post(r.Context(), chi.URLParam(r, "id"), actor), http.StatusOK)
}

func (h *Handler) postBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req postBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.service.PostBatch(r.Context(), req.DocumentIDs, actor), http.StatusOK)
}

func (h *Handler) fanout(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	h.respond(w, h.service.Fanout(r.Context(), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) parallelStatus(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.ParallelStatusOf(r.Context(), chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w, h.service.PendingApprovalsFor(r.Context(), actor), http.StatusOK)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := intParam(q.Get("year"), 0)
	if err != nil || year <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: year required", httpx.ErrValidation))
		return
	}
	company, ledger, account := chi.URLParam(r, "company"), chi.URLParam(r, "ledger"), chi.URLParam(r, "account")
	if q.Get("period") != "" {
		period, err := intParam(q.Get("period"), 0)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: period: %v", httpx.ErrValidation, err))
			return
		}
		key := balances.Key{CompanyID: company, LedgerID: ledger, AccountID: account, FiscalYear: year, Period: period}
		h.respond(w, h.service.BalanceOf(r.Context(), key), http.StatusOK)
		return
	}
	from, errFrom := intParam(q.Get("from"), 1)
	to, errTo := intParam(q.Get("to"), 16)
	if err := errors.Join(errFrom, errTo); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: period range: %v", httpx.ErrValidation, err))
		return
	}
	h.respond(w, h.service.BalanceRange(r.Context(), company, ledger, account, year, from, to), http.StatusOK)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, errYear := intParam(q.Get("year"), 0)
	period, errPeriod := intParam(q.Get("period"), 0)
	if err := errors.Join(errYear, errPeriod); err != nil || year <= 0 || period <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: year and period required", httpx.ErrValidation))
		return
	}
	h.respond(w, h.service.TrialBalance(r.Context(), chi.URLParam(r, "company"), chi.URLParam(r, "ledger"), year, period), http.StatusOK)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, ActorHeader))
		return "", false
	}
	return actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return false
	}
	return h.check(w, target)
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return h.check(w, target)
	}
	return h.decode(w, r, target)
}

func (h *Handler) check(w http.ResponseWriter, target any) bool {
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, describeValidation(err)))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, res accounting.Result, okStatus int) {
	if res.Success {
		httpx.JSON(w, okStatus, res)
		return
	}
	status := StatusFor(res.Code)
	detail := res.Message
	if status == http.StatusInternalServerError {
		detail = ""
	}
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Type:    "urn:odyssey:gl:" + strings.ToLower(res.Code),
		Status:  status,
		Detail:  detail,
		Code:    res.Code,
		Payload: res.Payload,
	})
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
