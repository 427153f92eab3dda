package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service mengoordinasikan pencatatan dan pembacaan jejak audit.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService membuat service audit baru.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Stamp fills id and timestamp when missing.
func Stamp(entry Entry, now time.Time) Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = now
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}
	return entry
}

// Record appends an entry outside any business transaction.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	entry = Stamp(entry, s.now())
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warn("audit append failed",
			slog.String("document", entry.DocumentID),
			slog.String("action", string(entry.Action)),
			slog.Any("error", err))
		return err
	}
	return nil
}

// TrailFor mengambil jejak audit sebuah dokumen dengan paging.
func (s *Service) TrailFor(ctx context.Context, documentID string, filters TrailFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.ListByDocument(ctx, documentID)
	if err != nil {
		return Result{}, err
	}
	if filters.Action != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Action == filters.Action {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + pageSize
	hasNext := end < len(rows)
	if !hasNext {
		end = len(rows)
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows[offset:end], Paging: paging}, nil
}

// Export mengambil seluruh jejak audit dokumen tanpa paging.
func (s *Service) Export(ctx context.Context, documentID string) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.ListByDocument(ctx, documentID)
}
