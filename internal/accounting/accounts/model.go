package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node scoped to a company.
type Account struct {
	ID        string
	CompanyID string
	Name      string
	Type      AccountType
	GroupID   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
