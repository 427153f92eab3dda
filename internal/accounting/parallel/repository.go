package parallel

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository persists per-target outcomes for operator visibility.
type Repository interface {
	SaveOutcomes(ctx context.Context, source journals.DocumentID, outcomes []TargetOutcome) error
	Outcomes(ctx context.Context, source journals.DocumentID) ([]TargetOutcome, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx outcome store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) SaveOutcomes(ctx context.Context, source journals.DocumentID, outcomes []TargetOutcome) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, o := range outcomes {
			if _, err := tx.Exec(ctx, `INSERT INTO parallel_outcomes
(source_id, ledger_id, document_id, success, already_posted, lines_posted, translations_applied, rewrites_applied, error, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (source_id, ledger_id) DO UPDATE SET
  document_id=EXCLUDED.document_id, success=EXCLUDED.success, already_posted=EXCLUDED.already_posted,
  lines_posted=EXCLUDED.lines_posted, translations_applied=EXCLUDED.translations_applied,
  rewrites_applied=EXCLUDED.rewrites_applied, error=EXCLUDED.error, updated_at=EXCLUDED.updated_at`,
				string(source), o.LedgerID, string(o.DocumentID), o.Success, o.AlreadyPosted, o.LinesPosted,
				o.TranslationsApplied, o.RewritesApplied, o.Error, o.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) Outcomes(ctx context.Context, source journals.DocumentID) ([]TargetOutcome, error) {
	rows, err := r.pool.Query(ctx, `SELECT ledger_id, document_id, success, already_posted, lines_posted,
translations_applied, rewrites_applied, error, updated_at
FROM parallel_outcomes WHERE source_id=$1 ORDER BY ledger_id ASC`, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TargetOutcome
	for rows.Next() {
		var (
			o     TargetOutcome
			docID string
		)
		if err := rows.Scan(&o.LedgerID, &docID, &o.Success, &o.AlreadyPosted, &o.LinesPosted,
			&o.TranslationsApplied, &o.RewritesApplied, &o.Error, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.DocumentID = journals.DocumentID(docID)
		out = append(out, o)
	}
	return out, rows.Err()
}
