package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

// MetricsPort records posting attempts.
type MetricsPort interface {
	ObservePosting(ledgerID, result string, elapsed time.Duration)
}

// Engine posts approved journal entries to a single ledger.
type Engine struct {
	repo      Repository
	accounts  accounts.Directory
	periods   periods.Directory
	tolerance decimal.Decimal
	metrics   MetricsPort
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine wires the posting engine.
func NewEngine(repo Repository, accountDir accounts.Directory, periodDir periods.Directory, tolerance decimal.Decimal, metrics MetricsPort, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:      repo,
		accounts:  accountDir,
		periods:   periodDir,
		tolerance: shared.ToleranceOrDefault(tolerance),
		metrics:   metrics,
		tracer:    otel.Tracer("odyssey-gl/posting"),
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post validates and writes one document to one ledger in a single transaction. Nothing is
// written when any check fails; a FAILED audit row is appended afterwards on a best-effort basis.
func (e *Engine) Post(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "posting.Post", trace.WithAttributes(
		attribute.String("gl.document", string(req.DocumentID)),
		attribute.String("gl.ledger", req.LedgerID),
	))
	defer span.End()
	started := e.now()

	res, entry, err := e.post(ctx, req)
	ledgerID := req.LedgerID
	if ledgerID == "" {
		ledgerID = entry.LedgerID
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.observe(ledgerID, resultLabel(err), started)
		e.recordFailure(ctx, req, entry, ledgerID, err)
		return Result{}, err
	}
	e.observe(ledgerID, "posted", started)
	e.logger.Info("document posted",
		slog.String("document", string(res.DocumentID)),
		slog.String("ledger", res.LedgerID),
		slog.Int("lines", res.LinesPosted),
		slog.String("actor", req.Poster.String()))
	return res, nil
}

// PostBatch posts each request in order and reports every outcome.
func (e *Engine) PostBatch(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{DocumentID: req.DocumentID, Err: err})
			continue
		}
		res, err := e.Post(ctx, req)
		outcomes = append(outcomes, Outcome{DocumentID: req.DocumentID, Result: res, Err: err})
	}
	return outcomes
}

func (e *Engine) post(ctx context.Context, req Request) (Result, journals.JournalEntry, error) {
	if req.Poster.IsZero() {
		return Result{}, journals.JournalEntry{}, shared.ErrActorRequired
	}
	var (
		res   Result
		entry journals.JournalEntry
	)
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.Derived != nil {
			if err := tx.InsertDerived(ctx, *req.Derived); err != nil {
				return err
			}
		}
		locked, err := tx.LockEntry(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		entry = locked
		lines, err := e.validate(ctx, req, entry)
		if err != nil {
			return err
		}

		postedAt := e.now()
		postingDate := entry.PostingDate
		if !req.PostingDate.IsZero() {
			postingDate = req.PostingDate
		}
		debit, credit := journals.Totals(lines)
		doc := Document{
			ID:          uuid.New(),
			DocumentID:  entry.ID,
			SourceID:    entry.SourceID,
			CompanyID:   entry.CompanyID,
			LedgerID:    entry.LedgerID,
			Currency:    entry.Currency,
			FiscalYear:  entry.FiscalYear,
			Period:      entry.Period,
			PostingDate: postingDate,
			PostedBy:    req.Poster.ID,
			PostedAt:    postedAt,
			TotalDebit:  debit,
			TotalCredit: credit,
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}

		txns := make([]Transaction, 0, len(lines))
		deltas := make([]balances.Delta, 0, len(lines))
		for _, line := range lines {
			currency := line.Currency
			if currency == "" {
				currency = entry.Currency
			}
			txns = append(txns, Transaction{
				PostingID:   doc.ID,
				LineNo:      line.LineNo,
				LedgerID:    entry.LedgerID,
				AccountID:   line.AccountID,
				Debit:       line.Debit,
				Credit:      line.Credit,
				Currency:    currency,
				Description: line.Description,
				Dimensions:  line.Dimensions,
			})
			deltas = append(deltas, balances.Delta{
				Key: balances.Key{
					CompanyID:  entry.CompanyID,
					LedgerID:   entry.LedgerID,
					AccountID:  line.AccountID,
					FiscalYear: entry.FiscalYear,
					Period:     entry.Period,
				},
				Debit:    line.Debit,
				Credit:   line.Credit,
				TxnCount: 1,
				At:       postedAt,
			})
		}
		if err := tx.InsertTransactions(ctx, txns); err != nil {
			return err
		}
		for _, delta := range balances.Merge(deltas) {
			if err := tx.ApplyBalance(ctx, delta); err != nil {
				return err
			}
		}
		if err := tx.MarkPosted(ctx, entry.ID, req.Poster.ID, postedAt); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, audit.Stamp(audit.Entry{
			DocumentID: string(entry.ID),
			CompanyID:  entry.CompanyID,
			LedgerID:   entry.LedgerID,
			Action:     audit.ActionPost,
			Actor:      req.Poster.ID,
			Amount:     debit,
			Status:     audit.StatusSuccess,
			Message:    fmt.Sprintf("posted %d lines to %s", len(txns), entry.LedgerID),
			Meta:       map[string]any{"posting_id": doc.ID.String(), "source": string(entry.SourceID)},
		}, postedAt)); err != nil {
			return err
		}

		res = Result{
			DocumentID:  entry.ID,
			LedgerID:    entry.LedgerID,
			PostingID:   doc.ID,
			LinesPosted: len(txns),
			TotalDebit:  debit,
			TotalCredit: credit,
			PostedAt:    postedAt,
		}
		return nil
	})
	return res, entry, err
}

// validate runs every check before the first write and returns the lines to post.
func (e *Engine) validate(ctx context.Context, req Request, entry journals.JournalEntry) ([]journals.JournalLine, error) {
	if entry.IsPosted() {
		return nil, shared.ErrAlreadyPosted
	}
	if entry.Status != journals.StatusApproved {
		return nil, shared.ErrNotApproved
	}
	if req.LedgerID != "" && req.LedgerID != entry.LedgerID {
		return nil, fmt.Errorf("%w: %s is booked to %s", shared.ErrLedgerMismatch, entry.ID, entry.LedgerID)
	}
	state, err := e.periods.Status(ctx, entry.CompanyID, entry.FiscalYear, entry.Period)
	if err != nil {
		return nil, err
	}
	if !state.Postable() {
		return nil, fmt.Errorf("%w: %d-%02d", shared.ErrPeriodClosed, entry.FiscalYear, entry.Period)
	}
	if !req.Poster.IsSystem() && req.Poster.Is(entry.CreatedBy) {
		return nil, shared.ErrSegregationOfDuties
	}
	lines := entry.PostableLines()
	debit, credit := journals.Totals(lines)
	if !shared.Balanced(debit, credit, e.tolerance) {
		return nil, fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	if debit.IsZero() && credit.IsZero() {
		return nil, shared.ErrZeroAmount
	}
	for _, line := range lines {
		ok, err := e.accounts.Exists(ctx, entry.CompanyID, line.AccountID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: line %d account %s", shared.ErrUnknownAccount, line.LineNo, line.AccountID)
		}
	}
	return lines, nil
}

func (e *Engine) recordFailure(ctx context.Context, req Request, entry journals.JournalEntry, ledgerID string, cause error) {
	if errors.Is(cause, shared.ErrJournalNotFound) || errors.Is(cause, context.Canceled) {
		return
	}
	companyID := entry.CompanyID
	if companyID == "" && req.Derived != nil {
		companyID = req.Derived.CompanyID
	}
	row := audit.Stamp(audit.Entry{
		DocumentID: string(req.DocumentID),
		CompanyID:  companyID,
		LedgerID:   ledgerID,
		Action:     audit.ActionPost,
		Actor:      req.Poster.ID,
		Status:     audit.StatusFailed,
		Message:    cause.Error(),
	}, e.now())
	if err := e.repo.AppendAudit(context.WithoutCancel(ctx), row); err != nil {
		e.logger.Warn("failed posting audit not recorded",
			slog.String("document", string(req.DocumentID)),
			slog.Any("error", err))
	}
	level := slog.LevelWarn
	if !errors.Is(cause, shared.ErrValidation) && !errors.Is(cause, shared.ErrAlreadyPosted) && !errors.Is(cause, shared.ErrSegregationOfDuties) {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "posting rejected",
		slog.String("document", string(req.DocumentID)),
		slog.String("ledger", ledgerID),
		slog.Any("error", cause))
}

func (e *Engine) observe(ledgerID, result string, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObservePosting(ledgerID, result, e.now().Sub(started))
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, shared.ErrAlreadyPosted):
		return "already_posted"
	case errors.Is(err, shared.ErrSegregationOfDuties):
		return "segregation"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
