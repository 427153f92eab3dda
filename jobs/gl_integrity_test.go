package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

type stubPosted struct {
	entries []journals.JournalEntry
	since   time.Time
}

func (s *stubPosted) ListPosted(_ context.Context, since time.Time, _ int) ([]journals.JournalEntry, error) {
	s.since = since
	return s.entries, nil
}

type stubPeriods map[string][]balances.AccountBalance

func (s stubPeriods) Period(_ context.Context, companyID, ledgerID string, _, _ int) ([]balances.AccountBalance, error) {
	return s[companyID+"/"+ledgerID], nil
}

func posted(id, ledger string, debit, credit int64) journals.JournalEntry {
	return journals.JournalEntry{
		ID:         journals.DocumentID(id),
		CompanyID:  "1000",
		LedgerID:   ledger,
		FiscalYear: 2026,
		Period:     3,
		Status:     journals.StatusPosted,
		Lines: []journals.JournalLine{
			{LineNo: 1, AccountID: "500001", Debit: decimal.NewFromInt(debit)},
			{LineNo: 2, AccountID: "100001", Credit: decimal.NewFromInt(credit)},
		},
	}
}

func row(ledger, account string, debit, credit int64) balances.AccountBalance {
	return balances.AccountBalance{
		Key:          balances.Key{CompanyID: "1000", LedgerID: ledger, AccountID: account, FiscalYear: 2026, Period: 3},
		PeriodDebit:  decimal.NewFromInt(debit),
		PeriodCredit: decimal.NewFromInt(credit),
	}
}

func TestGLIntegrityCleanLedger(t *testing.T) {
	entries := &stubPosted{entries: []journals.JournalEntry{posted("1000-1", "0L", 100, 100)}}
	store := stubPeriods{"1000/0L": {row("0L", "500001", 100, 0), row("0L", "100001", 0, 100)}}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job := NewGLIntegrityJob(entries, store, decimal.Zero, jobmetrics.NewMetrics(prometheus.NewRegistry()), nil)
	job.now = func() time.Time { return now }

	report, err := job.Run(context.Background(), GLIntegrityPayload{})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntriesChecked)
	require.Equal(t, 1, report.PeriodsChecked)
	require.Empty(t, report.Issues)
	require.Equal(t, now.Add(-24*time.Hour), entries.since)
}

func TestGLIntegrityFlagsImbalances(t *testing.T) {
	entries := &stubPosted{entries: []journals.JournalEntry{
		posted("1000-1", "0L", 100, 100),
		posted("1000-2_2L", "2L", 92, 90),
	}}
	store := stubPeriods{
		"1000/0L": {row("0L", "500001", 100, 0), row("0L", "100001", 0, 100)},
		"1000/2L": {row("2L", "500001", 92, 0), row("2L", "100001", 0, 90)},
	}
	job := NewGLIntegrityJob(entries, store, decimal.Zero, nil, nil)

	report, err := job.Run(context.Background(), GLIntegrityPayload{LookbackHours: 2})
	require.NoError(t, err)
	require.Equal(t, 2, report.PeriodsChecked)
	require.Len(t, report.Issues, 2)
	require.Equal(t, "unbalanced_entry", report.Issues[0].Kind)
	require.Equal(t, journals.DocumentID("1000-2_2L"), report.Issues[0].DocumentID)
	require.Equal(t, "trial_balance", report.Issues[1].Kind)
	require.Equal(t, "2L", report.Issues[1].LedgerID)
	require.True(t, report.Issues[1].Difference.Equal(decimal.NewFromInt(2)))
}

func TestGLIntegrityWithinTolerance(t *testing.T) {
	entry := posted("1000-3", "0L", 100, 100)
	entry.Lines[0].Debit = decimal.RequireFromString("100.005")
	entries := &stubPosted{entries: []journals.JournalEntry{entry}}
	job := NewGLIntegrityJob(entries, stubPeriods{}, decimal.Zero, nil, nil)

	report, err := job.Run(context.Background(), GLIntegrityPayload{})
	require.NoError(t, err)
	require.Empty(t, report.Issues)
}
