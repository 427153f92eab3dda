package balances

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TrialBalanceGroup aggregates accounts sharing a group prefix.
type TrialBalanceGroup struct {
	Key      string           `json:"key"`
	Accounts []AccountBalance `json:"accounts,omitempty"`
	Debit    decimal.Decimal  `json:"debit"`
	Credit   decimal.Decimal  `json:"credit"`
}

// TrialBalance summarises one ledger period.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups,omitempty"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Difference is total debit minus total credit.
func (tb TrialBalance) Difference() decimal.Decimal {
	return tb.TotalDebit.Sub(tb.TotalCredit)
}

// GroupKey returns the two digit prefix used for grouping trial balance rows.
func GroupKey(accountID string) string {
	if len(accountID) >= 2 {
		return accountID[:2]
	}
	return accountID
}

// BuildTrialBalance converts period balances into grouped trial balance data.
func BuildTrialBalance(rows []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, row := range rows {
		key := GroupKey(row.AccountID)
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.PeriodDebit)
		grp.Credit = grp.Credit.Add(row.PeriodCredit)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].AccountID < grp.Accounts[j].AccountID
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}
