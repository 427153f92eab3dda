package balances

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies one balance row.
type Key struct {
	CompanyID  string `json:"company_id"`
	LedgerID   string `json:"ledger_id"`
	AccountID  string `json:"account_id"`
	FiscalYear int    `json:"fiscal_year"`
	Period     int    `json:"period"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%d-%02d", k.CompanyID, k.LedgerID, k.AccountID, k.FiscalYear, k.Period)
}

// lockKey scopes serialisation to one account-year of one ledger.
func (k Key) lockKey() string {
	return fmt.Sprintf("balance:%s:%s:%s:%d", k.CompanyID, k.LedgerID, k.AccountID, k.FiscalYear)
}

// AccountBalance holds running totals per (company, ledger, account, year, period).
type AccountBalance struct {
	Key
	PeriodDebit  decimal.Decimal `json:"period_debit"`
	PeriodCredit decimal.Decimal `json:"period_credit"`
	YTDDebit     decimal.Decimal `json:"ytd_debit"`
	YTDCredit    decimal.Decimal `json:"ytd_credit"`
	YTDBalance   decimal.Decimal `json:"ytd_balance"`
	TxnCount     int             `json:"txn_count"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PeriodNet is debit minus credit for the period.
func (b AccountBalance) PeriodNet() decimal.Decimal {
	return b.PeriodDebit.Sub(b.PeriodCredit)
}

// Delta is an additive increment produced by one posting.
type Delta struct {
	Key
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	TxnCount int
	At       time.Time
}

// Add applies a delta to both period and year-to-date columns.
func (b AccountBalance) Add(d Delta) AccountBalance {
	b.PeriodDebit = b.PeriodDebit.Add(d.Debit)
	b.PeriodCredit = b.PeriodCredit.Add(d.Credit)
	return b.roll(d)
}

func (b AccountBalance) roll(d Delta) AccountBalance {
	b.YTDDebit = b.YTDDebit.Add(d.Debit)
	b.YTDCredit = b.YTDCredit.Add(d.Credit)
	b.YTDBalance = b.YTDDebit.Sub(b.YTDCredit)
	if d.At.After(b.UpdatedAt) {
		b.UpdatedAt = d.At
	}
	return b
}

// ApplyDelta performs the additive upsert against an in-memory table. A new row carries in
// year-to-date totals from the latest earlier period of the same year, later periods
// already present are rolled forward.
func ApplyDelta(rows map[Key]AccountBalance, d Delta) AccountBalance {
	current, ok := rows[d.Key]
	if !ok {
		current = AccountBalance{Key: d.Key}
		if prev, found := latestBefore(rows, d.Key); found {
			current.YTDDebit = prev.YTDDebit
			current.YTDCredit = prev.YTDCredit
			current.YTDBalance = prev.YTDBalance
		}
	}
	current = current.Add(d)
	current.TxnCount += d.TxnCount
	rows[d.Key] = current

	for key, row := range rows {
		if sameAccountYear(key, d.Key) && key.Period > d.Period {
			rows[key] = row.roll(d)
		}
	}
	return current
}

func latestBefore(rows map[Key]AccountBalance, key Key) (AccountBalance, bool) {
	var (
		best  AccountBalance
		found bool
	)
	for k, row := range rows {
		if !sameAccountYear(k, key) || k.Period >= key.Period {
			continue
		}
		if !found || k.Period > best.Period {
			best, found = row, true
		}
	}
	return best, found
}

func sameAccountYear(a, b Key) bool {
	return a.CompanyID == b.CompanyID && a.LedgerID == b.LedgerID && a.AccountID == b.AccountID && a.FiscalYear == b.FiscalYear
}

// Merge folds deltas sharing a key so each balance row is touched once per posting.
// The result is ordered by key to keep lock acquisition order stable.
func Merge(deltas []Delta) []Delta {
	index := make(map[Key]int, len(deltas))
	out := make([]Delta, 0, len(deltas))
	for _, d := range deltas {
		if pos, ok := index[d.Key]; ok {
			out[pos].Debit = out[pos].Debit.Add(d.Debit)
			out[pos].Credit = out[pos].Credit.Add(d.Credit)
			continue
		}
		index[d.Key] = len(out)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// SortRows orders balances by account then period.
func SortRows(rows []AccountBalance) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AccountID != rows[j].AccountID {
			return rows[i].AccountID < rows[j].AccountID
		}
		if rows[i].FiscalYear != rows[j].FiscalYear {
			return rows[i].FiscalYear < rows[j].FiscalYear
		}
		return rows[i].Period < rows[j].Period
	})
}
