package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory answers chart-of-accounts lookups for posting and derivation.
type Directory interface {
	Exists(ctx context.Context, companyID, accountID string) (bool, error)
	Group(ctx context.Context, companyID, accountID string) (string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres backed Directory.
func NewRepository(db *pgxpool.Pool) Directory {
	return &repository{db: db}
}

// Exists reports whether an active account exists in the company chart.
func (r *repository) Exists(ctx context.Context, companyID, accountID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT true FROM accounts WHERE company_id=$1 AND id=$2 AND is_active LIMIT 1`, companyID, accountID).Scan(&ok)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Group returns the account group, empty when the account is ungrouped or unknown.
func (r *repository) Group(ctx context.Context, companyID, accountID string) (string, error) {
	var group string
	err := r.db.QueryRow(ctx, `SELECT COALESCE(group_id, '') FROM accounts WHERE company_id=$1 AND id=$2`, companyID, accountID).Scan(&group)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return group, nil
}
