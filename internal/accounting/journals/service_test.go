package journals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type memoryRepo struct {
	entries map[DocumentID]JournalEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[DocumentID]JournalEntry)}
}

func (m *memoryRepo) Insert(_ context.Context, entry JournalEntry) error {
	if _, ok := m.entries[entry.ID]; ok {
		return shared.ErrDuplicateDocument
	}
	m.entries[entry.ID] = entry.Clone()
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id DocumentID) (JournalEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry.Clone(), nil
}

func (m *memoryRepo) UpdateParallelStatus(context.Context, DocumentID, int, int) error {
	return errors.New("not implemented")
}

func (m *memoryRepo) ListPosted(context.Context, time.Time, int) ([]JournalEntry, error) {
	return nil, nil
}

type staticLedgers []ledgers.Ledger

func (s staticLedgers) Ledgers(context.Context, string) ([]ledgers.Ledger, error) {
	return s, nil
}

func testLedgers() staticLedgers {
	return staticLedgers{
		{ID: "0L", CompanyID: "1000", Currency: "USD", IsLeading: true},
		{ID: "2L", CompanyID: "1000", Currency: "EUR"},
	}
}

func draftInput() CreateDraftInput {
	return CreateDraftInput{
		CompanyID:   "1000",
		DocNumber:   "JE-1",
		FiscalYear:  2024,
		Period:      3,
		PostingDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		CreatedBy:   "alice",
		Lines: []LineInput{
			{AccountID: "400001", Debit: decimal.NewFromInt(15000)},
			{AccountID: "100001", Credit: decimal.NewFromInt(15000)},
		},
	}
}

func TestCreateDraftDefaultsToLeadingLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, testLedgers(), decimal.Zero, nil)
	fixed := time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })

	entry, err := svc.CreateDraft(context.Background(), draftInput())
	require.NoError(t, err)
	require.Equal(t, DocumentID("1000-JE-1"), entry.ID)
	require.Equal(t, "0L", entry.LedgerID)
	require.Equal(t, "USD", entry.Currency)
	require.Equal(t, StatusDraft, entry.Status)
	require.Equal(t, fixed, entry.CreatedAt)
	require.Len(t, entry.Lines, 2)
	require.Equal(t, 2, entry.Lines[1].LineNo)

	stored, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, stored.ID)
}

func TestCreateDraftRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), testLedgers(), decimal.Zero, nil)

	in := draftInput()
	in.Lines[1].Credit = decimal.NewFromInt(14000)
	_, err := svc.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	in = draftInput()
	in.Lines = in.Lines[:1]
	_, err = svc.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	in = draftInput()
	in.Lines[0].Credit = decimal.NewFromInt(1)
	_, err = svc.CreateDraft(context.Background(), in)
	var lineErr *shared.LineError
	require.ErrorAs(t, err, &lineErr)
	require.Equal(t, 1, lineErr.Line)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = draftInput()
	in.Lines[1].LedgerID = "9L"
	_, err = svc.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateDraftWithinToleranceAndDuplicate(t *testing.T) {
	svc := NewService(newMemoryRepo(), testLedgers(), decimal.Zero, nil)
	in := draftInput()
	in.Lines[1].Credit = decimal.RequireFromString("14999.995")
	_, err := svc.CreateDraft(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrDuplicateDocument)
}

func TestCreateDraftUnknownLedger(t *testing.T) {
	svc := NewService(newMemoryRepo(), testLedgers(), decimal.Zero, nil)
	in := draftInput()
	in.LedgerID = "7L"
	_, err := svc.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrLedgerNotFound)
}

func TestEntryHelpers(t *testing.T) {
	entry := JournalEntry{
		ID:       "1000-JE-2",
		LedgerID: "0L",
		Lines: []JournalLine{
			{LineNo: 1, AccountID: "A", Debit: decimal.NewFromInt(100)},
			{LineNo: 2, AccountID: "B", Credit: decimal.NewFromInt(100)},
			{LineNo: 3, AccountID: "C", Debit: decimal.NewFromInt(5), LedgerID: "2L"},
			{LineNo: 4, AccountID: "D", Credit: decimal.NewFromInt(5), LedgerID: "0L"},
		},
	}
	require.Len(t, entry.PostableLines(), 3)
	require.True(t, entry.AbsoluteTotal().Equal(decimal.NewFromInt(105)))
	require.Equal(t, DocumentID("1000-JE-2_2L"), DerivedDocumentID(entry.ID, "2L"))

	debit, credit := Totals(entry.PostableLines())
	require.True(t, debit.Equal(decimal.NewFromInt(100)))
	require.True(t, credit.Equal(decimal.NewFromInt(105)))

	clone := entry.Clone()
	clone.Lines[0].AccountID = "Z"
	require.Equal(t, "A", entry.Lines[0].AccountID)
}
