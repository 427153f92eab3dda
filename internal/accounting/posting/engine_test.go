package posting_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/memstore"
)

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) ObservePosting(_ string, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func newEngine(t *testing.T) (*posting.Engine, *memstore.Store, *recordingMetrics) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.SeedDemo(2025))
	metrics := &recordingMetrics{}
	engine := posting.NewEngine(store.Postings(), store.Accounts(), store.Periods(), decimal.Zero, metrics, nil)
	engine.WithNow(func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) })
	return engine, store, metrics
}

func approvedEntry(t *testing.T, store *memstore.Store, number string, amount int64) journals.JournalEntry {
	t.Helper()
	entry := journals.JournalEntry{
		ID:          journals.NewDocumentID(memstore.DemoCompany, number),
		CompanyID:   memstore.DemoCompany,
		DocNumber:   number,
		LedgerID:    "0L",
		Currency:    "USD",
		FiscalYear:  2025,
		Period:      3,
		PostingDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:      journals.StatusApproved,
		CreatedBy:   "clerk",
		Lines: []journals.JournalLine{
			{LineNo: 1, AccountID: "100001", Debit: decimal.NewFromInt(amount), Currency: "USD"},
			{LineNo: 2, AccountID: "400001", Credit: decimal.NewFromInt(amount), Currency: "USD"},
		},
	}
	require.NoError(t, store.Journals().Insert(context.Background(), entry))
	return entry
}

func cashKey(ledger string) balances.Key {
	return balances.Key{CompanyID: memstore.DemoCompany, LedgerID: ledger, AccountID: "100001", FiscalYear: 2025, Period: 3}
}

func TestPostWritesLinesBalancesAndAudit(t *testing.T) {
	engine, store, metrics := newEngine(t)
	ctx := context.Background()
	entry := approvedEntry(t, store, "1", 15000)

	res, err := engine.Post(ctx, posting.Request{DocumentID: entry.ID, Poster: shared.User("manager1")})
	require.NoError(t, err)
	require.Equal(t, "0L", res.LedgerID)
	require.Equal(t, 2, res.LinesPosted)
	require.True(t, res.TotalDebit.Equal(decimal.NewFromInt(15000)))
	require.Len(t, store.Transactions(res.PostingID.String()), 2)

	posted, err := store.Journals().Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, journals.StatusPosted, posted.Status)
	require.Equal(t, "manager1", posted.PostedBy)

	cash, err := store.Balances().Get(ctx, cashKey("0L"))
	require.NoError(t, err)
	require.True(t, cash.PeriodDebit.Equal(decimal.NewFromInt(15000)))
	require.Equal(t, 1, cash.TxnCount)

	trail, err := store.Audit().ListByDocument(ctx, string(entry.ID))
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, audit.ActionPost, trail[0].Action)
	require.Equal(t, audit.StatusSuccess, trail[0].Status)
	require.Equal(t, []string{"posted"}, metrics.results)
}

func TestPostTwiceIsRejectedAndBalancesMoveOnce(t *testing.T) {
	engine, store, metrics := newEngine(t)
	ctx := context.Background()
	entry := approvedEntry(t, store, "2", 500)

	_, err := engine.Post(ctx, posting.Request{DocumentID: entry.ID, Poster: shared.User("manager1")})
	require.NoError(t, err)
	_, err = engine.Post(ctx, posting.Request{DocumentID: entry.ID, Poster: shared.User("manager1")})
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)

	cash, err := store.Balances().Get(ctx, cashKey("0L"))
	require.NoError(t, err)
	require.True(t, cash.PeriodDebit.Equal(decimal.NewFromInt(500)))
	require.Len(t, store.PostingDocuments(entry.ID), 1)
	require.Equal(t, []string{"posted", "already_posted"}, metrics.results)
}

func TestPostRejectsAuthor(t *testing.T) {
	engine, store, _ := newEngine(t)
	ctx := context.Background()
	entry := approvedEntry(t, store, "3", 100)

	_, err := engine.Post(ctx, posting.Request{DocumentID: entry.ID, Poster: shared.User("clerk")})
	require.ErrorIs(t, err, shared.ErrSegregationOfDuties)

	trail, err := store.Audit().ListByDocument(ctx, string(entry.ID))
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, audit.StatusFailed, trail[0].Status)

	_, err = store.Balances().Get(ctx, cashKey("0L"))
	require.ErrorIs(t, err, shared.ErrBalanceNotFound)
}

func TestPostValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*journals.JournalEntry)
		req    func(*posting.Request)
		setup  func(*memstore.Store)
		want   error
	}{
		{
			name:   "draft",
			mutate: func(e *journals.JournalEntry) { e.Status = journals.StatusDraft },
			want:   shared.ErrNotApproved,
		},
		{
			name:   "unbalanced",
			mutate: func(e *journals.JournalEntry) { e.Lines[1].Credit = decimal.NewFromInt(90) },
			want:   shared.ErrUnbalanced,
		},
		{
			name: "zero amount",
			mutate: func(e *journals.JournalEntry) {
				e.Lines[0].Debit = decimal.Zero
				e.Lines[1].Credit = decimal.Zero
			},
			want: shared.ErrZeroAmount,
		},
		{
			name:   "unknown account",
			mutate: func(e *journals.JournalEntry) { e.Lines[0].AccountID = "999999" },
			want:   shared.ErrUnknownAccount,
		},
		{
			name: "closed period",
			setup: func(s *memstore.Store) {
				s.SetPeriod(periods.State{CompanyID: memstore.DemoCompany, FiscalYear: 2025, Period: 3, Status: periods.StatusClosed})
			},
			want: shared.ErrPeriodClosed,
		},
		{
			name: "ledger mismatch",
			req:  func(r *posting.Request) { r.LedgerID = "2L" },
			want: shared.ErrLedgerMismatch,
		},
		{
			name: "missing actor",
			req:  func(r *posting.Request) { r.Poster = shared.Actor{} },
			want: shared.ErrActorRequired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, store, _ := newEngine(t)
			ctx := context.Background()
			if tc.setup != nil {
				tc.setup(store)
			}
			entry := journals.JournalEntry{
				ID:         "1000-V",
				CompanyID:  memstore.DemoCompany,
				LedgerID:   "0L",
				Currency:   "USD",
				FiscalYear: 2025,
				Period:     3,
				Status:     journals.StatusApproved,
				CreatedBy:  "clerk",
				Lines: []journals.JournalLine{
					{LineNo: 1, AccountID: "100001", Debit: decimal.NewFromInt(100)},
					{LineNo: 2, AccountID: "400001", Credit: decimal.NewFromInt(100)},
				},
			}
			if tc.mutate != nil {
				tc.mutate(&entry)
			}
			require.NoError(t, store.Journals().Insert(ctx, entry))
			req := posting.Request{DocumentID: entry.ID, Poster: shared.User("manager1")}
			if tc.req != nil {
				tc.req(&req)
			}
			_, err := engine.Post(ctx, req)
			require.ErrorIs(t, err, tc.want)

			got, err := store.Journals().Get(ctx, entry.ID)
			require.NoError(t, err)
			require.False(t, got.IsPosted())
		})
	}
}

func TestPostInsertsDerivedEntryInSameTransaction(t *testing.T) {
	engine, store, _ := newEngine(t)
	ctx := context.Background()
	derived := journals.JournalEntry{
		ID:         journals.DerivedDocumentID("1000-9", "3L"),
		CompanyID:  memstore.DemoCompany,
		LedgerID:   "3L",
		SourceID:   "1000-9",
		Currency:   "USD",
		FiscalYear: 2025,
		Period:     3,
		Status:     journals.StatusApproved,
		CreatedBy:  "clerk",
		Lines: []journals.JournalLine{
			{LineNo: 1, AccountID: "100001", Debit: decimal.NewFromInt(100)},
			{LineNo: 2, AccountID: "400001", Credit: decimal.NewFromInt(100)},
		},
	}
	res, err := engine.Post(ctx, posting.Request{DocumentID: derived.ID, LedgerID: "3L", Poster: shared.SystemActor(), Derived: &derived})
	require.NoError(t, err)
	require.Equal(t, "3L", res.LedgerID)

	_, err = engine.Post(ctx, posting.Request{DocumentID: derived.ID, LedgerID: "3L", Poster: shared.SystemActor(), Derived: &derived})
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)

	cash, err := store.Balances().Get(ctx, cashKey("3L"))
	require.NoError(t, err)
	require.True(t, cash.PeriodDebit.Equal(decimal.NewFromInt(100)))
}

func TestPostBatchReportsEveryOutcome(t *testing.T) {
	engine, store, _ := newEngine(t)
	ctx := context.Background()
	first := approvedEntry(t, store, "10", 100)
	second := approvedEntry(t, store, "11", 200)

	outcomes := engine.PostBatch(ctx, []posting.Request{
		{DocumentID: first.ID, Poster: shared.User("manager1")},
		{DocumentID: "1000-missing", Poster: shared.User("manager1")},
		{DocumentID: second.ID, Poster: shared.User("clerk")},
	})
	require.Len(t, outcomes, 3)
	require.NoError(t, outcomes[0].Err)
	require.ErrorIs(t, outcomes[1].Err, shared.ErrJournalNotFound)
	require.ErrorIs(t, outcomes[2].Err, shared.ErrSegregationOfDuties)

	cash, err := store.Balances().Get(ctx, cashKey("0L"))
	require.NoError(t, err)
	require.True(t, cash.PeriodDebit.Equal(decimal.NewFromInt(100)))
}

func TestConcurrentPostsPostEachDocumentOnce(t *testing.T) {
	engine, store, _ := newEngine(t)
	ctx := context.Background()

	const documents, callersPerDocument = 10, 5
	ids := make([]journals.DocumentID, 0, documents)
	for i := 0; i < documents; i++ {
		ids = append(ids, approvedEntry(t, store, fmt.Sprintf("C%d", i), 100).ID)
	}

	var posted, alreadyPosted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, id := range ids {
		for c := 0; c < callersPerDocument; c++ {
			wg.Add(1)
			go func(id journals.DocumentID) {
				defer wg.Done()
				<-start
				_, err := engine.Post(ctx, posting.Request{DocumentID: id, Poster: shared.User("manager1")})
				switch {
				case err == nil:
					posted.Add(1)
				case errors.Is(err, shared.ErrAlreadyPosted):
					alreadyPosted.Add(1)
				default:
					t.Errorf("post %s: %v", id, err)
				}
			}(id)
		}
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(documents), posted.Load())
	require.Equal(t, int32(documents*(callersPerDocument-1)), alreadyPosted.Load())
	for _, id := range ids {
		require.Len(t, store.PostingDocuments(id), 1)
	}
	cash, err := store.Balances().Get(ctx, cashKey("0L"))
	require.NoError(t, err)
	require.True(t, cash.PeriodDebit.Equal(decimal.NewFromInt(100*documents)), cash.PeriodDebit.String())
	require.Equal(t, documents, cash.TxnCount)
}
