package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository menyediakan akses ke tabel audit_trail.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	ListByDocument(ctx context.Context, documentID string) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit berbasis pgx.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Append(ctx context.Context, entry Entry) error {
	return Insert(ctx, r.pool, entry)
}

func (r *repository) ListByDocument(ctx context.Context, documentID string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, company_id, COALESCE(ledger_id,''), action, actor, amount,
status, message, meta, occurred_at
FROM audit_trail WHERE document_id=$1 ORDER BY occurred_at ASC, seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			status string
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.CompanyID, &e.LedgerID, &action, &e.Actor, &e.Amount,
			&status, &e.Message, &meta, &e.At); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		e.Status = Status(status)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert menulis satu baris audit, dipakai juga di dalam transaksi posting.
func Insert(ctx context.Context, q db.Querier, entry Entry) error {
	if entry.ID == "" || entry.DocumentID == "" || entry.Action == "" {
		return errors.New("audit entry requires id/document/action")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO audit_trail
(id, document_id, company_id, ledger_id, action, actor, amount, status, message, meta, occurred_at)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID, entry.DocumentID, entry.CompanyID, entry.LedgerID, string(entry.Action), entry.Actor,
		entry.Amount, string(entry.Status), entry.Message, metaJSON, entry.At)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", entry.Action, err)
	}
	return nil
}
