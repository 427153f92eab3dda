package periods

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory reports fiscal period states.
type Directory interface {
	Status(ctx context.Context, companyID string, year, period int) (State, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres backed Directory.
func NewRepository(db *pgxpool.Pool) Directory {
	return &repository{db: db}
}

// Status returns the state of a period. Unknown periods are reported as CLOSED.
func (r *repository) Status(ctx context.Context, companyID string, year, period int) (State, error) {
	state := State{CompanyID: companyID, FiscalYear: year, Period: period}
	var status string
	err := r.db.QueryRow(ctx, `SELECT status, allow_posting FROM fiscal_periods WHERE company_id=$1 AND fiscal_year=$2 AND period=$3`, companyID, year, period).
		Scan(&status, &state.AllowPosting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			state.Status = StatusClosed
			return state, nil
		}
		return State{}, err
	}
	state.Status = Status(status)
	return state, nil
}
