package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

const (
	defaultIntegrityLookback = 24
	defaultIntegrityLimit    = 5000
)

// PostedSource lists posted entries.
type PostedSource interface {
	ListPosted(ctx context.Context, since time.Time, limit int) ([]journals.JournalEntry, error)
}

// PeriodBalances reads one ledger period of balances.
type PeriodBalances interface {
	Period(ctx context.Context, companyID, ledgerID string, year, period int) ([]balances.AccountBalance, error)
}

// IntegrityIssue is one imbalance found by the check.
type IntegrityIssue struct {
	Kind       string
	CompanyID  string
	LedgerID   string
	DocumentID journals.DocumentID
	Year       int
	Period     int
	Difference decimal.Decimal
}

// IntegrityReport summarises one run.
type IntegrityReport struct {
	EntriesChecked int
	PeriodsChecked int
	Issues         []IntegrityIssue
}

type periodScope struct {
	company string
	ledger  string
	year    int
	period  int
}

// GLIntegrityJob verifies that posted entries balance and that every touched
// ledger period has a zero trial balance difference.
type GLIntegrityJob struct {
	entries   PostedSource
	balances  PeriodBalances
	tolerance decimal.Decimal
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewGLIntegrityJob wires the integrity check.
func NewGLIntegrityJob(entries PostedSource, store PeriodBalances, tolerance decimal.Decimal, metrics *jobmetrics.Metrics, logger *slog.Logger) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{
		entries:   entries,
		balances:  store,
		tolerance: shared.ToleranceOrDefault(tolerance),
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run scans entries posted within the lookback window.
func (j *GLIntegrityJob) Run(ctx context.Context, payload GLIntegrityPayload) (IntegrityReport, error) {
	if payload.LookbackHours <= 0 {
		payload.LookbackHours = defaultIntegrityLookback
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultIntegrityLimit
	}
	since := j.now().Add(-time.Duration(payload.LookbackHours) * time.Hour)
	entries, err := j.entries.ListPosted(ctx, since, payload.Limit)
	if err != nil {
		return IntegrityReport{}, err
	}

	var report IntegrityReport
	scopes := make(map[periodScope]struct{})
	for _, entry := range entries {
		report.EntriesChecked++
		debit, credit := journals.Totals(entry.PostableLines())
		if !shared.Balanced(debit, credit, j.tolerance) {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:       "unbalanced_entry",
				CompanyID:  entry.CompanyID,
				LedgerID:   entry.LedgerID,
				DocumentID: entry.ID,
				Year:       entry.FiscalYear,
				Period:     entry.Period,
				Difference: debit.Sub(credit),
			})
		}
		scopes[periodScope{entry.CompanyID, entry.LedgerID, entry.FiscalYear, entry.Period}] = struct{}{}
	}

	ordered := make([]periodScope, 0, len(scopes))
	for scope := range scopes {
		ordered = append(ordered, scope)
	}
	sort.Slice(ordered, func(a, b int) bool {
		x, y := ordered[a], ordered[b]
		if x.company != y.company {
			return x.company < y.company
		}
		if x.ledger != y.ledger {
			return x.ledger < y.ledger
		}
		if x.year != y.year {
			return x.year < y.year
		}
		return x.period < y.period
	})
	for _, scope := range ordered {
		rows, err := j.balances.Period(ctx, scope.company, scope.ledger, scope.year, scope.period)
		if err != nil {
			return report, err
		}
		report.PeriodsChecked++
		diff := balances.BuildTrialBalance(rows).Difference()
		if diff.Abs().GreaterThan(j.tolerance) {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:       "trial_balance",
				CompanyID:  scope.company,
				LedgerID:   scope.ledger,
				Year:       scope.year,
				Period:     scope.period,
				Difference: diff,
			})
		}
	}

	for _, issue := range report.Issues {
		j.metrics.AddAnomalies(issue.Kind, issue.CompanyID, issue.LedgerID, 1)
		j.logger.Warn("gl integrity issue",
			slog.String("kind", issue.Kind),
			slog.String("company", issue.CompanyID),
			slog.String("ledger", issue.LedgerID),
			slog.String("document", string(issue.DocumentID)),
			slog.Int("year", issue.Year),
			slog.Int("period", issue.Period),
			slog.String("difference", issue.Difference.String()))
	}
	j.logger.Info("gl integrity check executed",
		slog.String("job", TaskGLIntegrity),
		slog.Int("entries", report.EntriesChecked),
		slog.Int("periods", report.PeriodsChecked),
		slog.Int("issues", len(report.Issues)))
	return report, nil
}

// ProcessTask satisfies asynq.Handler.
func (j *GLIntegrityJob) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskGLIntegrity)
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(errors.Join(err, asynq.SkipRetry))
		}
	}
	_, err := j.Run(ctx, payload)
	return tracker.End(err)
}
