package accounting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/memstore"
)

func newCoordinator(t *testing.T, opts accounting.Options) (*accounting.Service, *memstore.Store) {
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
		Locker:   lock.NewLocalLocker(),
	}, opts, nil)
	return svc, store
}

func draftInput(number string, amount int64, author string) journals.CreateDraftInput {
	return journals.CreateDraftInput{
		CompanyID:   memstore.DemoCompany,
		DocNumber:   number,
		FiscalYear:  2025,
		Period:      3,
		PostingDate: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		CreatedBy:   author,
		Lines: []journals.LineInput{
			{AccountID: "400001", Debit: decimal.NewFromInt(amount), Description: "reclass"},
			{AccountID: "100001", Credit: decimal.NewFromInt(amount), Description: "reclass"},
		},
	}
}

func submit(t *testing.T, svc *accounting.Service, in journals.CreateDraftInput) approval.WorkflowInstance {
	t.Helper()
	ctx := context.Background()
	created := svc.CreateDraft(ctx, in)
	require.True(t, created.Success, created.Message)
	entry := created.Payload.(journals.JournalEntry)

	submitted := svc.Submit(ctx, string(entry.ID), in.CreatedBy)
	require.True(t, submitted.Success, submitted.Message)
	return submitted.Payload.(approval.WorkflowInstance)
}

func TestEndToEndApprovePostAndFanout(t *testing.T) {
	svc, _ := newCoordinator(t, accounting.Options{})
	ctx := context.Background()
	wf := submit(t, svc, draftInput("JV-1", 15000, "userA"))
	require.Equal(t, "Manager", wf.LevelName)

	res := svc.Approve(ctx, wf.ID, "manager1", "looks right")
	require.True(t, res.Success, res.Message)
	out := res.Payload.(accounting.ApprovalOutcome)
	require.Equal(t, accounting.OutcomeApprovedAndPosted, out.Outcome)
	require.NotNil(t, out.Fanout)
	require.Equal(t, 2, out.Fanout.SuccessCount)

	journal := svc.Journal(ctx, string(wf.DocumentID))
	require.True(t, journal.Success)
	entry := journal.Payload.(journals.JournalEntry)
	require.Equal(t, journals.StatusPosted, entry.Status)
	require.Equal(t, 2, entry.ParallelSuccessCount)

	bal := svc.BalanceOf(ctx, balances.Key{CompanyID: memstore.DemoCompany, LedgerID: "0L", AccountID: "400001", FiscalYear: 2025, Period: 3})
	require.True(t, bal.Success, bal.Message)
	require.True(t, bal.Payload.(balances.AccountBalance).PeriodDebit.Equal(decimal.NewFromInt(15000)))

	eur := svc.BalanceOf(ctx, balances.Key{CompanyID: memstore.DemoCompany, LedgerID: "2L", AccountID: "100001", FiscalYear: 2025, Period: 3})
	require.True(t, eur.Success, eur.Message)
	require.True(t, eur.Payload.(balances.AccountBalance).PeriodCredit.Equal(decimal.NewFromInt(13800)))

	for _, ledger := range []string{"0L", "2L", "3L"} {
		tb := svc.TrialBalance(ctx, memstore.DemoCompany, ledger, 2025, 3)
		require.True(t, tb.Success)
		require.True(t, tb.Payload.(balances.TrialBalance).Difference().IsZero(), ledger)
	}

	status := svc.ParallelStatusOf(ctx, string(wf.DocumentID))
	require.True(t, status.Success)
	require.Len(t, status.Payload.(parallel.Report).Targets, 2)

	again := svc.Post(ctx, string(wf.DocumentID), "manager2")
	require.False(t, again.Success)
	require.Equal(t, accounting.CodeAlreadyPosted, again.Code)

	trail := svc.AuditTrailFor(ctx, string(wf.DocumentID), audit.TrailFilters{})
	require.True(t, trail.Success)
	actions := []audit.Action{}
	for _, row := range trail.Payload.(audit.Result).Rows {
		actions = append(actions, row.Action)
	}
	require.Equal(t, []audit.Action{audit.ActionSubmit, audit.ActionApprove, audit.ActionPost, audit.ActionFanout, audit.ActionPost}, actions)
}

func TestApproveReportsPostingFailure(t *testing.T) {
	svc, store := newCoordinator(t, accounting.Options{})
	ctx := context.Background()
	wf := submit(t, svc, draftInput("JV-2", 500, "userA"))
	store.SetPeriod(closedPeriod())

	res := svc.Approve(ctx, wf.ID, "supervisor1", "")
	require.True(t, res.Success, res.Message)
	out := res.Payload.(accounting.ApprovalOutcome)
	require.Equal(t, accounting.OutcomeApprovedPostingFailed, out.Outcome)
	require.Equal(t, accounting.CodePeriodClosed, out.PostingCode)
	require.Nil(t, out.Fanout)

	journal := svc.Journal(ctx, string(wf.DocumentID))
	require.Equal(t, string(journals.StatusApproved), journal.Message)
}

func TestDeferPostingLeavesEntryApproved(t *testing.T) {
	svc, _ := newCoordinator(t, accounting.Options{DeferPosting: true})
	ctx := context.Background()
	wf := submit(t, svc, draftInput("JV-3", 500, "userA"))

	res := svc.Approve(ctx, wf.ID, "supervisor2", "")
	require.True(t, res.Success)
	require.Equal(t, accounting.OutcomeApproved, res.Payload.(accounting.ApprovalOutcome).Outcome)

	batch := svc.PostBatch(ctx, []string{string(wf.DocumentID), "1000-missing"}, "supervisor2")
	require.True(t, batch.Success, batch.Message)
	report := batch.Payload.(accounting.BatchReport)
	require.Equal(t, 1, report.Posted)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, accounting.CodeNotFound, report.Items[1].Code)

	fanout := svc.Fanout(ctx, string(wf.DocumentID))
	require.True(t, fanout.Success, fanout.Message)
}

func TestSelfApprovalIsRejected(t *testing.T) {
	svc, store := newCoordinator(t, accounting.Options{})
	ctx := context.Background()
	store.SetApprovers(memstore.DemoCompany, "L1", "userA", "supervisor1")
	wf := submit(t, svc, draftInput("JV-4", 100, "userA"))

	res := svc.Approve(ctx, wf.ID, "userA", "")
	require.False(t, res.Success)
	require.Equal(t, accounting.CodeSegregationOfDuties, res.Code)

	pending := svc.PendingApprovalsFor(ctx, "supervisor1")
	require.True(t, pending.Success)
	require.Len(t, pending.Payload.([]approval.PendingApproval), 1)
}

func TestPartialFanoutKeepsLeadingPost(t *testing.T) {
	svc, store := newCoordinator(t, accounting.Options{})
	ctx := context.Background()
	store.AddLedger(ledgers.Ledger{ID: "4L", CompanyID: memstore.DemoCompany, Currency: "USD"})
	store.AddLedger(ledgers.Ledger{ID: "5L", CompanyID: memstore.DemoCompany, Currency: "USD"})
	require.NoError(t, store.AddRule(ledgers.DerivationRule{
		CompanyID:    memstore.DemoCompany,
		SourceLedger: "0L",
		TargetLedger: "4L",
		MatchType:    ledgers.MatchAccount,
		MatchValue:   "400001",
		Action:       ledgers.ActionAdjust,
		Factor:       decimal.RequireFromString("1.1"),
	}))
	wf := submit(t, svc, draftInput("JV-5", 2000, "userA"))

	res := svc.Approve(ctx, wf.ID, "supervisor1", "")
	require.True(t, res.Success, res.Message)
	out := res.Payload.(accounting.ApprovalOutcome)
	require.Equal(t, 4, out.Fanout.LedgerCount)
	require.Equal(t, 3, out.Fanout.SuccessCount)
	for _, target := range out.Fanout.Targets {
		if target.LedgerID == "4L" {
			require.False(t, target.Success)
			require.Contains(t, target.Error, "do not balance")
		}
	}

	journal := svc.Journal(ctx, string(wf.DocumentID))
	require.Equal(t, string(journals.StatusPosted), journal.Message)
}

func TestFailuresCarryCodes(t *testing.T) {
	svc, _ := newCoordinator(t, accounting.Options{})
	ctx := context.Background()

	bad := draftInput("JV-6", 100, "userA")
	bad.Lines[1].Credit = decimal.NewFromInt(90)
	res := svc.CreateDraft(ctx, bad)
	require.False(t, res.Success)
	require.Equal(t, accounting.CodeUnbalanced, res.Code)

	res = svc.Submit(ctx, "1000-none", "userA")
	require.Equal(t, accounting.CodeNotFound, res.Code)

	res = svc.BalanceRange(ctx, memstore.DemoCompany, "0L", "100001", 2025, 5, 2)
	require.Equal(t, accounting.CodeValidation, res.Code)

	wf := submit(t, svc, draftInput("JV-7", 100, "userA"))
	res = svc.Reject(ctx, wf.ID, "supervisor1", "")
	require.Equal(t, accounting.CodeReasonRequired, res.Code)
	res = svc.Withdraw(ctx, wf.ID, "userA")
	require.True(t, res.Success)
}

func TestPanicsBecomeFailureResults(t *testing.T) {
	svc := accounting.NewService(accounting.Deps{}, accounting.Options{}, nil)
	res := svc.CreateDraft(context.Background(), draftInput("JV-8", 100, "userA"))
	require.False(t, res.Success)
	require.Equal(t, accounting.CodeInternal, res.Code)
}

func closedPeriod() periods.State {
	return periods.State{CompanyID: memstore.DemoCompany, FiscalYear: 2025, Period: 3, Status: periods.StatusClosed}
}

func TestConcurrentApproversFirstActorWins(t *testing.T) {
	svc, store := newCoordinator(t, accounting.Options{})
	ctx := context.Background()
	wf := submit(t, svc, draftInput("JV-RACE", 15000, "userA"))

	approvers := []string{"manager1", "manager2", "manager1", "manager2"}
	results := make([]accounting.Result, len(approvers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, approver := range approvers {
		wg.Add(1)
		go func(i int, approver string) {
			defer wg.Done()
			<-start
			results[i] = svc.Approve(ctx, wf.ID, approver, "race")
		}(i, approver)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res.Success {
			winners++
			require.Equal(t, accounting.OutcomeApprovedAndPosted, res.Payload.(accounting.ApprovalOutcome).Outcome)
			continue
		}
		require.Equal(t, accounting.CodeAlreadyApproved, res.Code, res.Message)
	}
	require.Equal(t, 1, winners)
	require.Len(t, store.PostingDocuments(wf.DocumentID), 1)

	cash, err := store.Balances().Get(ctx, balances.Key{CompanyID: memstore.DemoCompany, LedgerID: "0L", AccountID: "100001", FiscalYear: 2025, Period: 3})
	require.NoError(t, err)
	require.True(t, cash.PeriodCredit.Equal(decimal.NewFromInt(15000)))
	require.Equal(t, 1, cash.TxnCount)
}
