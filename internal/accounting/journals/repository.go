package journals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository persists journal entries outside of posting transactions.
type Repository interface {
	Insert(ctx context.Context, entry JournalEntry) error
	Get(ctx context.Context, id DocumentID) (JournalEntry, error)
	UpdateParallelStatus(ctx context.Context, id DocumentID, ledgerCount, successCount int) error
	ListPosted(ctx context.Context, since time.Time, limit int) ([]JournalEntry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx backed journal store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, entry JournalEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return InsertEntry(ctx, tx, entry)
	})
}

func (r *repository) Get(ctx context.Context, id DocumentID) (JournalEntry, error) {
	return loadEntry(ctx, r.pool, id, false)
}

func (r *repository) UpdateParallelStatus(ctx context.Context, id DocumentID, ledgerCount, successCount int) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE journal_entries
SET parallel_posted=TRUE, parallel_ledger_count=$2, parallel_success_count=$3
WHERE id=$1`, string(id), ledgerCount, successCount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *repository) ListPosted(ctx context.Context, since time.Time, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM journal_entries
WHERE status='POSTED' AND posted_at >= $1 ORDER BY posted_at ASC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	var ids []DocumentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, DocumentID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	entries := make([]JournalEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := loadEntry(ctx, r.pool, id, false)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// InsertEntry stores the header and lines, failing with ErrDuplicateDocument when the id is taken.
func InsertEntry(ctx context.Context, q db.Querier, entry JournalEntry) error {
	inserted, err := InsertEntryIfAbsent(ctx, q, entry)
	if err != nil {
		return err
	}
	if !inserted {
		return shared.ErrDuplicateDocument
	}
	return nil
}

// InsertEntryIfAbsent stores the entry unless a row with the same id exists.
func InsertEntryIfAbsent(ctx context.Context, q db.Querier, entry JournalEntry) (bool, error) {
	cmd, err := q.Exec(ctx, `INSERT INTO journal_entries
(id, company_id, doc_number, ledger_id, source_id, currency, fiscal_year, period, posting_date, status, created_by, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`,
		string(entry.ID), entry.CompanyID, entry.DocNumber, entry.LedgerID, string(entry.SourceID), entry.Currency,
		entry.FiscalYear, entry.Period, entry.PostingDate, string(entry.Status), entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, shared.ErrDuplicateDocument
		}
		return false, fmt.Errorf("insert journal entry: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}
	for _, line := range entry.Lines {
		dims, err := json.Marshal(line.Dimensions)
		if err != nil {
			return false, err
		}
		if _, err := q.Exec(ctx, `INSERT INTO journal_lines
(entry_id, line_no, account_id, debit, credit, currency, description, dimensions, ledger_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''))`,
			string(entry.ID), line.LineNo, line.AccountID, line.Debit, line.Credit, line.Currency,
			line.Description, dims, line.LedgerID); err != nil {
			return false, fmt.Errorf("insert journal line %d: %w", line.LineNo, err)
		}
	}
	return true, nil
}

// LockEntry loads the entry and holds its row lock until the transaction ends.
func LockEntry(ctx context.Context, q db.Querier, id DocumentID) (JournalEntry, error) {
	return loadEntry(ctx, q, id, true)
}

// UpdateStatus moves the entry to a new lifecycle status.
func UpdateStatus(ctx context.Context, q db.Querier, id DocumentID, status Status) error {
	cmd, err := q.Exec(ctx, `UPDATE journal_entries SET status=$2 WHERE id=$1`, string(id), string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// MarkPosted stamps the entry as posted by the given actor.
func MarkPosted(ctx context.Context, q db.Querier, id DocumentID, postedBy string, at time.Time) error {
	cmd, err := q.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3
WHERE id=$1 AND posted_at IS NULL`, string(id), postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyPosted
	}
	return nil
}

func loadEntry(ctx context.Context, q db.Querier, id DocumentID, forUpdate bool) (JournalEntry, error) {
	query := `SELECT id, company_id, doc_number, ledger_id, COALESCE(source_id,''), currency, fiscal_year, period,
posting_date, status, created_by, created_at, COALESCE(posted_by,''), posted_at,
parallel_posted, parallel_ledger_count, parallel_success_count
FROM journal_entries WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		entry       JournalEntry
		rawID       string
		rawSource   string
		rawStatus   string
		rawPostedAt *time.Time
	)
	err := q.QueryRow(ctx, query, string(id)).Scan(&rawID, &entry.CompanyID, &entry.DocNumber, &entry.LedgerID,
		&rawSource, &entry.Currency, &entry.FiscalYear, &entry.Period, &entry.PostingDate, &rawStatus,
		&entry.CreatedBy, &entry.CreatedAt, &entry.PostedBy, &rawPostedAt,
		&entry.ParallelPosted, &entry.ParallelLedgerCount, &entry.ParallelSuccessCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	entry.ID = DocumentID(rawID)
	entry.SourceID = DocumentID(rawSource)
	entry.Status = Status(rawStatus)
	entry.PostedAt = rawPostedAt

	rows, err := q.Query(ctx, `SELECT line_no, account_id, debit, credit, currency, description, dimensions, COALESCE(ledger_id,'')
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no ASC`, string(id))
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line JournalLine
			dims []byte
		)
		if err := rows.Scan(&line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Currency,
			&line.Description, &dims, &line.LedgerID); err != nil {
			return JournalEntry{}, err
		}
		if len(dims) > 0 {
			if err := json.Unmarshal(dims, &line.Dimensions); err != nil {
				return JournalEntry{}, err
			}
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}
