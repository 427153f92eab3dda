package ledgers

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is one accounting basis of a company. Exactly one ledger per company is leading.
type Ledger struct {
	ID        string
	CompanyID string
	Name      string
	Currency  string
	IsLeading bool
	Principle string
	CreatedAt time.Time
}

// MatchType decides which lines a derivation rule applies to.
type MatchType string

const (
	MatchAccount  MatchType = "ACCOUNT"
	MatchGroup    MatchType = "GROUP"
	MatchWildcard MatchType = "WILDCARD"
)

// Action is what a derivation rule does with a matched line.
type Action string

const (
	ActionCopy    Action = "COPY"
	ActionAdjust  Action = "ADJUST"
	ActionExclude Action = "EXCLUDE"
)

// DerivationRule transforms a leading-ledger line into a parallel-ledger line.
type DerivationRule struct {
	ID            int64
	CompanyID     string
	SourceLedger  string
	TargetLedger  string
	MatchType     MatchType
	MatchValue    string
	Action        Action
	Factor        decimal.Decimal
	TargetAccount string
	Description   string
}

// Implicit reports whether the rule was synthesised because nothing matched.
func (r DerivationRule) Implicit() bool {
	return r.ID == 0 && r.MatchType == MatchWildcard && r.Action == ActionCopy
}

// TargetAccountFor returns the account the derived line is booked to.
func (r DerivationRule) TargetAccountFor(source string) string {
	if target := strings.TrimSpace(r.TargetAccount); target != "" {
		return target
	}
	return source
}
