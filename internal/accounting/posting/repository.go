package posting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository opens posting transactions and records failures outside them.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

// TxRepository exposes the writes of a single posting transaction.
type TxRepository interface {
	InsertDerived(ctx context.Context, entry journals.JournalEntry) error
	LockEntry(ctx context.Context, id journals.DocumentID) (journals.JournalEntry, error)
	InsertDocument(ctx context.Context, doc Document) error
	InsertTransactions(ctx context.Context, lines []Transaction) error
	ApplyBalance(ctx context.Context, delta balances.Delta) error
	MarkPosted(ctx context.Context, id journals.DocumentID, postedBy string, at time.Time) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx posting repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// postAttempts bounds replays of a posting transaction that hit a deadlock between
// balance rows.
const postAttempts = 3

// WithTx runs fn at ReadCommitted. The entry row lock and the per account-year
// advisory lock provide the exclusion, and every statement after a lock wait sees
// the rows committed by the previous holder.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Retry(ctx, postAttempts, func() error {
		return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
			return fn(ctx, &txRepository{tx: tx})
		})
	})
}

func (r *repository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, r.pool, entry)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertDerived(ctx context.Context, entry journals.JournalEntry) error {
	_, err := journals.InsertEntryIfAbsent(ctx, r.tx, entry)
	return err
}

func (r *txRepository) LockEntry(ctx context.Context, id journals.DocumentID) (journals.JournalEntry, error) {
	return journals.LockEntry(ctx, r.tx, id)
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO posting_documents
(id, document_id, source_id, company_id, ledger_id, currency, fiscal_year, period, posting_date,
 posted_by, posted_at, total_debit, total_credit)
VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		doc.ID, string(doc.DocumentID), string(doc.SourceID), doc.CompanyID, doc.LedgerID, doc.Currency,
		doc.FiscalYear, doc.Period, doc.PostingDate, doc.PostedBy, doc.PostedAt, doc.TotalDebit, doc.TotalCredit)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("posting document %s/%s: %w", doc.DocumentID, doc.LedgerID, shared.ErrAlreadyPosted)
		}
		return fmt.Errorf("insert posting document: %w", err)
	}
	return nil
}

func (r *txRepository) InsertTransactions(ctx context.Context, lines []Transaction) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		dims, err := json.Marshal(line.Dimensions)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO gl_transactions
(posting_id, line_no, ledger_id, account_id, debit, credit, currency, description, dimensions)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			line.PostingID, line.LineNo, line.LedgerID, line.AccountID, line.Debit, line.Credit,
			line.Currency, line.Description, dims)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert gl transaction: %w", err)
		}
	}
	return results.Close()
}

func (r *txRepository) ApplyBalance(ctx context.Context, delta balances.Delta) error {
	return balances.Apply(ctx, r.tx, delta)
}

func (r *txRepository) MarkPosted(ctx context.Context, id journals.DocumentID, postedBy string, at time.Time) error {
	return journals.MarkPosted(ctx, r.tx, id, postedBy, at)
}

func (r *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, r.tx, entry)
}
