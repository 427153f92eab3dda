package parallel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
)

// Poster is the single-ledger posting engine.
type Poster interface {
	Post(ctx context.Context, req posting.Request) (posting.Result, error)
}

// AuditPort records the fanout summary.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// MetricsPort counts per-target results.
type MetricsPort interface {
	ObserveFanoutTarget(ledgerID, result string)
}

// Config tunes the engine.
type Config struct {
	Concurrency int
	Tolerance   decimal.Decimal
}

// Engine distributes a posted leading-ledger document to every parallel ledger.
type Engine struct {
	journals   journals.Repository
	ledgers    ledgers.Repository
	accounts   accounts.Directory
	translator fx.Translator
	poster     Poster
	repo       Repository
	audit      AuditPort
	metrics    MetricsPort
	cfg        Config
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Journals   journals.Repository
	Ledgers    ledgers.Repository
	Accounts   accounts.Directory
	Translator fx.Translator
	Poster     Poster
	Outcomes   Repository
	Audit      AuditPort
	Metrics    MetricsPort
}

// NewEngine wires the distribution engine.
func NewEngine(deps Deps, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	cfg.Tolerance = shared.ToleranceOrDefault(cfg.Tolerance)
	return &Engine{
		journals:   deps.Journals,
		ledgers:    deps.Ledgers,
		accounts:   deps.Accounts,
		translator: deps.Translator,
		poster:     deps.Poster,
		repo:       deps.Outcomes,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		cfg:        cfg,
		tracer:     otel.Tracer("odyssey-gl/parallel"),
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Fanout derives and posts the source document to each parallel ledger. Every target is
// isolated: a failure is recorded for that ledger only and never touches the leading post.
func (e *Engine) Fanout(ctx context.Context, sourceID journals.DocumentID) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "parallel.Fanout", trace.WithAttributes(attribute.String("gl.document", string(sourceID))))
	defer span.End()

	source, err := e.journals.Get(ctx, sourceID)
	if err != nil {
		return Report{}, err
	}
	if source.IsDerived() {
		return Report{}, fmt.Errorf("%w: %s is a derived document", shared.ErrInvalidStatus, sourceID)
	}
	if !source.IsPosted() {
		return Report{}, shared.ErrNotPosted
	}
	configured, err := e.ledgers.Ledgers(ctx, source.CompanyID)
	if err != nil {
		return Report{}, err
	}
	leading, targets, err := ledgers.SplitLeading(configured)
	if err != nil {
		return Report{}, err
	}
	if source.LedgerID != leading.ID {
		return Report{}, fmt.Errorf("%w: %s is not in the leading ledger", shared.ErrLedgerMismatch, sourceID)
	}

	if len(targets) == 0 {
		e.logger.Debug("no parallel ledgers configured", slog.String("document", string(source.ID)))
		return Report{DocumentID: source.ID}, nil
	}

	groups := e.groupLookup(source.CompanyID)
	outcomes := make([]TargetOutcome, len(targets))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = e.distribute(ctx, source, leading, target, groups)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		DocumentID:  source.ID,
		Distributed: true,
		LedgerCount: len(targets),
		Targets:     outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			report.SuccessCount++
		}
	}
	span.SetAttributes(attribute.Int("gl.targets", report.LedgerCount), attribute.Int("gl.succeeded", report.SuccessCount))

	persistCtx := context.WithoutCancel(ctx)
	if len(outcomes) > 0 {
		if err := e.repo.SaveOutcomes(persistCtx, source.ID, outcomes); err != nil {
			e.logger.Error("fanout outcomes not saved", slog.String("document", string(source.ID)), slog.Any("error", err))
		}
	}
	if err := e.journals.UpdateParallelStatus(persistCtx, source.ID, report.LedgerCount, report.SuccessCount); err != nil {
		return report, err
	}
	e.recordAudit(persistCtx, source, report)

	attrs := []any{
		slog.String("document", string(source.ID)),
		slog.Int("ledgers", report.LedgerCount),
		slog.Int("succeeded", report.SuccessCount),
	}
	if report.Complete() {
		e.logger.Info("fanout completed", attrs...)
	} else {
		e.logger.Warn("fanout incomplete", attrs...)
	}
	return report, nil
}

// Status returns the recorded fanout state of a source document.
func (e *Engine) Status(ctx context.Context, sourceID journals.DocumentID) (Report, error) {
	source, err := e.journals.Get(ctx, sourceID)
	if err != nil {
		return Report{}, err
	}
	outcomes, err := e.repo.Outcomes(ctx, sourceID)
	if err != nil {
		return Report{}, err
	}
	return Report{
		DocumentID:   source.ID,
		Distributed:  source.ParallelPosted,
		LedgerCount:  source.ParallelLedgerCount,
		SuccessCount: source.ParallelSuccessCount,
		Targets:      outcomes,
	}, nil
}

func (e *Engine) distribute(ctx context.Context, source journals.JournalEntry, leading, target ledgers.Ledger, groups GroupLookup) TargetOutcome {
	outcome := TargetOutcome{
		LedgerID:   target.ID,
		DocumentID: journals.DerivedDocumentID(source.ID, target.ID),
	}
	result, err := e.deriveAndPost(ctx, source, leading, target, groups, &outcome)
	outcome.UpdatedAt = e.now()
	switch {
	case err == nil:
		outcome.Success = true
		outcome.LinesPosted = result.LinesPosted
		e.observe(target.ID, "posted")
	case errors.Is(err, shared.ErrAlreadyPosted):
		outcome.Success = true
		outcome.AlreadyPosted = true
		e.observe(target.ID, "already_posted")
	default:
		outcome.Error = err.Error()
		e.observe(target.ID, failureLabel(err))
		e.logger.Warn("fanout target failed",
			slog.String("document", string(source.ID)),
			slog.String("ledger", target.ID),
			slog.Any("error", err))
	}
	return outcome
}

func (e *Engine) deriveAndPost(ctx context.Context, source journals.JournalEntry, leading, target ledgers.Ledger, groups GroupLookup, outcome *TargetOutcome) (posting.Result, error) {
	rules, err := e.ledgers.Rules(ctx, source.CompanyID, leading.ID, target.ID)
	if err != nil {
		return posting.Result{}, err
	}
	lookup := func(ctx context.Context) (decimal.Decimal, error) {
		return e.translator.Rate(ctx, source.Currency, target.Currency, source.PostingDate)
	}
	d, err := derive(ctx, source, leading, target, ledgers.NewRuleSet(rules), groups, lookup, e.cfg.Tolerance, e.now())
	if err != nil {
		return posting.Result{}, err
	}
	if !d.residual.IsZero() {
		e.logger.Debug("translation rounding residual booked",
			slog.String("document", string(d.entry.ID)),
			slog.String("residual", d.residual.String()))
	}
	outcome.TranslationsApplied = d.translations
	outcome.RewritesApplied = d.rewrites
	return e.poster.Post(ctx, posting.Request{
		DocumentID:  d.entry.ID,
		LedgerID:    target.ID,
		Poster:      shared.SystemActor(),
		PostingDate: source.PostingDate,
		Derived:     &d.entry,
	})
}

// groupLookup memoises account groups for the duration of one fanout.
func (e *Engine) groupLookup(companyID string) GroupLookup {
	var (
		mu    sync.Mutex
		cache = make(map[string]string)
	)
	return func(ctx context.Context, accountID string) (string, error) {
		mu.Lock()
		group, ok := cache[accountID]
		mu.Unlock()
		if ok {
			return group, nil
		}
		group, err := e.accounts.Group(ctx, companyID, accountID)
		if err != nil {
			return "", err
		}
		mu.Lock()
		cache[accountID] = group
		mu.Unlock()
		return group, nil
	}
}

func (e *Engine) recordAudit(ctx context.Context, source journals.JournalEntry, report Report) {
	if e.audit == nil {
		return
	}
	status := audit.StatusSuccess
	if !report.Complete() {
		status = audit.StatusFailed
	}
	meta := make(map[string]any, len(report.Targets))
	for _, t := range report.Targets {
		if t.Success {
			meta[t.LedgerID] = "ok"
		} else {
			meta[t.LedgerID] = t.Error
		}
	}
	debit, _ := journals.Totals(source.PostableLines())
	if err := e.audit.Record(ctx, audit.Entry{
		DocumentID: string(source.ID),
		CompanyID:  source.CompanyID,
		LedgerID:   source.LedgerID,
		Action:     audit.ActionFanout,
		Actor:      shared.SystemActor().ID,
		Amount:     debit,
		Status:     status,
		Message:    fmt.Sprintf("%d of %d parallel ledgers posted", report.SuccessCount, report.LedgerCount),
		Meta:       meta,
	}); err != nil {
		e.logger.Warn("fanout audit not recorded", slog.String("document", string(source.ID)), slog.Any("error", err))
	}
}

func (e *Engine) observe(ledgerID, result string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveFanoutTarget(ledgerID, result)
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, fx.ErrTranslationUnavailable):
		return "translation_unavailable"
	case errors.Is(err, shared.ErrDerivationUnbalanced):
		return "unbalanced"
	case errors.Is(err, shared.ErrNoLinesGenerated):
		return "no_lines"
	default:
		return "error"
	}
}
