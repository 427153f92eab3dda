package fx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RateStore returns the rate effective on a date; ok is false when none is stored.
type RateStore interface {
	LatestRate(ctx context.Context, from, to string, date time.Time) (rate decimal.Decimal, ok bool, err error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore returns a rate store backed by the fx_rates table.
func NewStore(pool *pgxpool.Pool) RateStore {
	return &pgStore{pool: pool}
}

func (s *pgStore) LatestRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, bool, error) {
	var rate decimal.Decimal
	err := s.pool.QueryRow(ctx, `SELECT rate FROM fx_rates
WHERE base_currency=$1 AND quote_currency=$2 AND effective_date <= $3
ORDER BY effective_date DESC LIMIT 1`, from, to, date).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

// StaticRates is a fixed rate table keyed by "FROM/TO", used by the memory engine and tests.
type StaticRates map[string]decimal.Decimal

// LatestRate ignores the date and returns the configured pair.
func (s StaticRates) LatestRate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, bool, error) {
	rate, ok := s[strings.ToUpper(from)+"/"+strings.ToUpper(to)]
	return rate, ok, nil
}
