package journals

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// LedgerSource lists the ledgers configured for a company.
type LedgerSource interface {
	Ledgers(ctx context.Context, companyID string) ([]ledgers.Ledger, error)
}

// Service stages journal entries and reads them back.
type Service struct {
	repo      Repository
	ledgers   LedgerSource
	tolerance decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the journal service.
func NewService(repo Repository, ledgerSource LedgerSource, tolerance decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		ledgers:   ledgerSource,
		tolerance: shared.ToleranceOrDefault(tolerance),
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft validates the input and stores a DRAFT entry in the leading ledger unless
// another ledger is named.
func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (JournalEntry, error) {
	if err := in.Validate(s.tolerance); err != nil {
		return JournalEntry{}, err
	}
	configured, err := s.ledgers.Ledgers(ctx, in.CompanyID)
	if err != nil {
		return JournalEntry{}, err
	}
	leading, _, err := ledgers.SplitLeading(configured)
	if err != nil {
		return JournalEntry{}, err
	}
	ledger := leading
	if in.LedgerID != "" && in.LedgerID != leading.ID {
		found := false
		for _, l := range configured {
			if l.ID == in.LedgerID {
				ledger, found = l, true
				break
			}
		}
		if !found {
			return JournalEntry{}, shared.ErrLedgerNotFound
		}
	}
	known := make(map[string]struct{}, len(configured))
	for _, l := range configured {
		known[l.ID] = struct{}{}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = ledger.Currency
	}
	entry := JournalEntry{
		ID:          NewDocumentID(in.CompanyID, in.DocNumber),
		CompanyID:   in.CompanyID,
		DocNumber:   in.DocNumber,
		LedgerID:    ledger.ID,
		Currency:    currency,
		FiscalYear:  in.FiscalYear,
		Period:      in.Period,
		PostingDate: in.PostingDate,
		Status:      StatusDraft,
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
		CreatedAt:   s.now(),
		Lines:       make([]JournalLine, 0, len(in.Lines)),
	}
	for idx, line := range in.Lines {
		if line.LedgerID != "" {
			if _, ok := known[line.LedgerID]; !ok {
				return JournalEntry{}, &shared.LineError{Line: idx + 1, Reason: "unknown ledger " + line.LedgerID}
			}
		}
		entry.Lines = append(entry.Lines, JournalLine{
			LineNo:      idx + 1,
			AccountID:   strings.TrimSpace(line.AccountID),
			Debit:       line.Debit,
			Credit:      line.Credit,
			Currency:    currency,
			Description: line.Description,
			Dimensions:  line.Dimensions,
			LedgerID:    line.LedgerID,
		})
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		if !errors.Is(err, shared.ErrDuplicateDocument) {
			s.logger.Error("journal draft insert failed", slog.String("document", string(entry.ID)), slog.Any("error", err))
		}
		return JournalEntry{}, err
	}
	s.logger.Info("journal draft created", slog.String("document", string(entry.ID)), slog.String("ledger", entry.LedgerID))
	return entry, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, id DocumentID) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}
