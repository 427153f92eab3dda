package balances

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Store reads committed balances.
type Store interface {
	Get(ctx context.Context, key Key) (AccountBalance, error)
	Range(ctx context.Context, companyID, ledgerID, accountID string, year, fromPeriod, toPeriod int) ([]AccountBalance, error)
	Period(ctx context.Context, companyID, ledgerID string, year, period int) ([]AccountBalance, error)
}

type store struct {
	pool *pgxpool.Pool
}

// NewStore returns the pgx balance reader.
func NewStore(pool *pgxpool.Pool) Store {
	return &store{pool: pool}
}

const selectBalance = `SELECT company_id, ledger_id, account_id, fiscal_year, period, period_debit, period_credit,
ytd_debit, ytd_credit, ytd_balance, txn_count, updated_at FROM account_balances`

func (s *store) Get(ctx context.Context, key Key) (AccountBalance, error) {
	row := s.pool.QueryRow(ctx, selectBalance+`
WHERE company_id=$1 AND ledger_id=$2 AND account_id=$3 AND fiscal_year=$4 AND period=$5`,
		key.CompanyID, key.LedgerID, key.AccountID, key.FiscalYear, key.Period)
	bal, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBalance{}, shared.ErrBalanceNotFound
		}
		return AccountBalance{}, err
	}
	return bal, nil
}

func (s *store) Range(ctx context.Context, companyID, ledgerID, accountID string, year, fromPeriod, toPeriod int) ([]AccountBalance, error) {
	rows, err := s.pool.Query(ctx, selectBalance+`
WHERE company_id=$1 AND ledger_id=$2 AND account_id=$3 AND fiscal_year=$4 AND period BETWEEN $5 AND $6
ORDER BY period ASC`, companyID, ledgerID, accountID, year, fromPeriod, toPeriod)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *store) Period(ctx context.Context, companyID, ledgerID string, year, period int) ([]AccountBalance, error) {
	rows, err := s.pool.Query(ctx, selectBalance+`
WHERE company_id=$1 AND ledger_id=$2 AND fiscal_year=$3 AND period=$4
ORDER BY account_id ASC`, companyID, ledgerID, year, period)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]AccountBalance, error) {
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		bal, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bal)
	}
	return out, rows.Err()
}

func scanBalance(row pgx.Row) (AccountBalance, error) {
	var b AccountBalance
	err := row.Scan(&b.CompanyID, &b.LedgerID, &b.AccountID, &b.FiscalYear, &b.Period, &b.PeriodDebit,
		&b.PeriodCredit, &b.YTDDebit, &b.YTDCredit, &b.YTDBalance, &b.TxnCount, &b.UpdatedAt)
	return b, err
}

// Apply performs the additive upsert inside the caller's transaction, which must run at
// ReadCommitted: the statements after the advisory lock wait then see the previous
// holder's rows, so only postings to the same account-year serialise.
func Apply(ctx context.Context, q db.Querier, d Delta) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, d.lockKey()); err != nil {
		return fmt.Errorf("balance lock %s: %w", d.Key, err)
	}
	if _, err := q.Exec(ctx, `INSERT INTO account_balances
(company_id, ledger_id, account_id, fiscal_year, period, period_debit, period_credit,
 ytd_debit, ytd_credit, ytd_balance, txn_count, updated_at)
SELECT $1, $2, $3, $4, $5, $6::numeric, $7::numeric,
       COALESCE(prev.ytd_debit, 0) + $6::numeric,
       COALESCE(prev.ytd_credit, 0) + $7::numeric,
       COALESCE(prev.ytd_balance, 0) + $6::numeric - $7::numeric,
       $8, $9
FROM (SELECT 1) AS seed
LEFT JOIN LATERAL (
  SELECT ytd_debit, ytd_credit, ytd_balance FROM account_balances
  WHERE company_id=$1 AND ledger_id=$2 AND account_id=$3 AND fiscal_year=$4 AND period < $5
  ORDER BY period DESC LIMIT 1
) AS prev ON TRUE
ON CONFLICT (company_id, ledger_id, account_id, fiscal_year, period) DO UPDATE SET
  period_debit = account_balances.period_debit + $6::numeric,
  period_credit = account_balances.period_credit + $7::numeric,
  ytd_debit = account_balances.ytd_debit + $6::numeric,
  ytd_credit = account_balances.ytd_credit + $7::numeric,
  ytd_balance = account_balances.ytd_balance + $6::numeric - $7::numeric,
  txn_count = account_balances.txn_count + EXCLUDED.txn_count,
  updated_at = GREATEST(account_balances.updated_at, EXCLUDED.updated_at)`,
		d.CompanyID, d.LedgerID, d.AccountID, d.FiscalYear, d.Period, d.Debit, d.Credit, d.TxnCount, d.At); err != nil {
		return fmt.Errorf("balance upsert %s: %w", d.Key, err)
	}
	if _, err := q.Exec(ctx, `UPDATE account_balances SET
  ytd_debit = ytd_debit + $6::numeric,
  ytd_credit = ytd_credit + $7::numeric,
  ytd_balance = ytd_balance + $6::numeric - $7::numeric,
  updated_at = GREATEST(updated_at, $8)
WHERE company_id=$1 AND ledger_id=$2 AND account_id=$3 AND fiscal_year=$4 AND period > $5`,
		d.CompanyID, d.LedgerID, d.AccountID, d.FiscalYear, d.Period, d.Debit, d.Credit, d.At); err != nil {
		return fmt.Errorf("balance roll forward %s: %w", d.Key, err)
	}
	return nil
}
