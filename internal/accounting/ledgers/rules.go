package ledgers

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// RuleSet resolves the derivation rule for a line: exact account beats account group,
// group beats wildcard, and an implicit COPY applies when nothing matches.
type RuleSet struct {
	byAccount map[string]DerivationRule
	byGroup   map[string]DerivationRule
	wildcard  *DerivationRule
}

// NewRuleSet indexes rules. When two rules share a key the first one wins.
func NewRuleSet(rules []DerivationRule) RuleSet {
	set := RuleSet{
		byAccount: make(map[string]DerivationRule),
		byGroup:   make(map[string]DerivationRule),
	}
	for _, rule := range rules {
		key := strings.TrimSpace(rule.MatchValue)
		switch rule.MatchType {
		case MatchAccount:
			if _, ok := set.byAccount[key]; !ok {
				set.byAccount[key] = rule
			}
		case MatchGroup:
			if _, ok := set.byGroup[key]; !ok {
				set.byGroup[key] = rule
			}
		case MatchWildcard:
			if set.wildcard == nil {
				r := rule
				set.wildcard = &r
			}
		}
	}
	return set
}

// NeedsGroups reports whether any rule matches by account group.
func (s RuleSet) NeedsGroups() bool {
	return len(s.byGroup) > 0
}

// Match returns the rule that governs a line booked to account (member of group).
func (s RuleSet) Match(account, group string) DerivationRule {
	if rule, ok := s.byAccount[account]; ok {
		return rule
	}
	if group != "" {
		if rule, ok := s.byGroup[group]; ok {
			return rule
		}
	}
	if s.wildcard != nil {
		return *s.wildcard
	}
	return DerivationRule{MatchType: MatchWildcard, MatchValue: "*", Action: ActionCopy}
}

// Validate checks a rule before it is stored.
func (r DerivationRule) Validate() error {
	if r.SourceLedger == "" || r.TargetLedger == "" {
		return fmt.Errorf("%w: rule requires source and target ledger", shared.ErrValidation)
	}
	if r.SourceLedger == r.TargetLedger {
		return fmt.Errorf("%w: rule source and target ledger must differ", shared.ErrValidation)
	}
	switch r.MatchType {
	case MatchAccount, MatchGroup:
		if strings.TrimSpace(r.MatchValue) == "" {
			return fmt.Errorf("%w: %s rule requires a match value", shared.ErrValidation, r.MatchType)
		}
	case MatchWildcard:
	default:
		return fmt.Errorf("%w: unknown match type %q", shared.ErrValidation, r.MatchType)
	}
	switch r.Action {
	case ActionCopy, ActionExclude:
	case ActionAdjust:
		if r.Factor.IsNegative() {
			return fmt.Errorf("%w: adjust factor must not be negative", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", shared.ErrValidation, r.Action)
	}
	return nil
}

// SplitLeading separates the leading ledger from the parallel ledgers.
func SplitLeading(all []Ledger) (Ledger, []Ledger, error) {
	var (
		leading Ledger
		found   int
		targets []Ledger
	)
	for _, l := range all {
		if l.IsLeading {
			leading = l
			found++
			continue
		}
		targets = append(targets, l)
	}
	if found != 1 {
		return Ledger{}, nil, shared.ErrLeadingLedgerMissing
	}
	return leading, targets, nil
}
