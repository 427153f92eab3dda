package ledgers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads ledger configuration. Ledgers and rules are read-mostly reference data.
type Repository interface {
	Ledgers(ctx context.Context, companyID string) ([]Ledger, error)
	Rules(ctx context.Context, companyID, sourceLedger, targetLedger string) ([]DerivationRule, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Ledgers(ctx context.Context, companyID string) ([]Ledger, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, name, currency, is_leading, principle, created_at
FROM ledgers WHERE company_id=$1 ORDER BY is_leading DESC, id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		var l Ledger
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.Name, &l.Currency, &l.IsLeading, &l.Principle, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Rules(ctx context.Context, companyID, sourceLedger, targetLedger string) ([]DerivationRule, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, source_ledger, target_ledger, match_type, match_value, action, factor, target_account, description
FROM derivation_rules WHERE company_id=$1 AND source_ledger=$2 AND target_ledger=$3 ORDER BY id ASC`, companyID, sourceLedger, targetLedger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DerivationRule
	for rows.Next() {
		var rule DerivationRule
		var matchType, action string
		if err := rows.Scan(&rule.ID, &rule.CompanyID, &rule.SourceLedger, &rule.TargetLedger, &matchType, &rule.MatchValue, &action, &rule.Factor, &rule.TargetAccount, &rule.Description); err != nil {
			return nil, err
		}
		rule.MatchType = MatchType(matchType)
		rule.Action = Action(action)
		out = append(out, rule)
	}
	return out, rows.Err()
}
