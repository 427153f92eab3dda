package memstore

import (
	"context"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type balanceStore struct{ s *Store }

func (b balanceStore) Get(_ context.Context, key balances.Key) (balances.AccountBalance, error) {
	var (
		row balances.AccountBalance
		ok  bool
	)
	b.s.read(func(st *state) {
		row, ok = st.balances[key]
	})
	if !ok {
		return balances.AccountBalance{}, shared.ErrBalanceNotFound
	}
	return row, nil
}

func (b balanceStore) Range(_ context.Context, companyID, ledgerID, accountID string, year, fromPeriod, toPeriod int) ([]balances.AccountBalance, error) {
	var out []balances.AccountBalance
	b.s.read(func(st *state) {
		for k, row := range st.balances {
			if k.CompanyID == companyID && k.LedgerID == ledgerID && k.AccountID == accountID &&
				k.FiscalYear == year && k.Period >= fromPeriod && k.Period <= toPeriod {
				out = append(out, row)
			}
		}
	})
	balances.SortRows(out)
	return out, nil
}

func (b balanceStore) Period(_ context.Context, companyID, ledgerID string, year, period int) ([]balances.AccountBalance, error) {
	var out []balances.AccountBalance
	b.s.read(func(st *state) {
		for k, row := range st.balances {
			if k.CompanyID == companyID && k.LedgerID == ledgerID && k.FiscalYear == year && k.Period == period {
				out = append(out, row)
			}
		}
	})
	balances.SortRows(out)
	return out, nil
}
