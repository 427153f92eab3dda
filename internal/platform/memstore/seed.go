package memstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
)

// DemoCompany is the company seeded by SeedDemo.
const DemoCompany = "1000"

// SeedDemo loads a company with a USD leading ledger, an EUR parallel ledger and a USD
// local-GAAP ledger, a small chart of accounts, open periods for year and three approval levels.
func (s *Store) SeedDemo(year int) error {
	now := time.Now().UTC()
	s.AddLedger(ledgers.Ledger{ID: "0L", CompanyID: DemoCompany, Name: "Leading ledger", Currency: "USD", IsLeading: true, Principle: "IFRS", CreatedAt: now})
	s.AddLedger(ledgers.Ledger{ID: "2L", CompanyID: DemoCompany, Name: "Group reporting", Currency: "EUR", Principle: "IFRS", CreatedAt: now})
	s.AddLedger(ledgers.Ledger{ID: "3L", CompanyID: DemoCompany, Name: "Local GAAP", Currency: "USD", Principle: "US-GAAP", CreatedAt: now})

	chart := []accounts.Account{
		{ID: "100001", Name: "Cash", Type: accounts.AccountTypeAsset, GroupID: "CASH"},
		{ID: "110001", Name: "Receivables", Type: accounts.AccountTypeAsset, GroupID: "AR"},
		{ID: "200001", Name: "Payables", Type: accounts.AccountTypeLiability, GroupID: "AP"},
		{ID: "400001", Name: "Revenue", Type: accounts.AccountTypeRevenue, GroupID: "REV"},
		{ID: "500001", Name: "Operating expense", Type: accounts.AccountTypeExpense, GroupID: "OPEX"},
	}
	for _, a := range chart {
		a.CompanyID = DemoCompany
		a.IsActive = true
		a.CreatedAt = now
		a.UpdatedAt = now
		s.AddAccount(a)
	}
	for p := 1; p <= 12; p++ {
		s.SetPeriod(periods.State{CompanyID: DemoCompany, FiscalYear: year, Period: p, Status: periods.StatusOpen, AllowPosting: true})
	}

	table, err := approval.NewLevelTable(DemoCompany, 1, []approval.ApprovalLevel{
		{ID: "L1", Name: "Supervisor", MinAmount: decimal.Zero, MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(10000)), Order: 1},
		{ID: "L2", Name: "Manager", MinAmount: decimal.NewFromInt(10000), MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(50000)), Order: 2},
		{ID: "L3", Name: "Director", MinAmount: decimal.NewFromInt(50000), Order: 3},
	})
	if err != nil {
		return err
	}
	s.SetLevels(table)
	s.SetApprovers(DemoCompany, "L1", "supervisor1", "supervisor2")
	s.SetApprovers(DemoCompany, "L2", "manager1", "manager2")
	s.SetApprovers(DemoCompany, "L3", "director1")
	return nil
}
