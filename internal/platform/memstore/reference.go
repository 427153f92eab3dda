package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
)

// AddLedger registers a ledger for its company.
func (s *Store) AddLedger(l ledgers.Ledger) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.ref.ledgers[l.CompanyID] = append(s.ref.ledgers[l.CompanyID], l)
}

// AddRule registers a derivation rule after validating it.
func (s *Store) AddRule(rule ledgers.DerivationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.refMu.Lock()
	defer s.refMu.Unlock()
	rule.ID = int64(len(s.ref.rules) + 1)
	s.ref.rules = append(s.ref.rules, rule)
	return nil
}

// AddAccount registers an active account.
func (s *Store) AddAccount(a accounts.Account) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	chart, ok := s.ref.accounts[a.CompanyID]
	if !ok {
		chart = make(map[string]accounts.Account)
		s.ref.accounts[a.CompanyID] = chart
	}
	chart[a.ID] = a
}

// SetPeriod stores the state of a fiscal period.
func (s *Store) SetPeriod(state periods.State) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.ref.periods[periodKey{state.CompanyID, state.FiscalYear, state.Period}] = state
}

// SetLevels publishes a new level table version for its company.
func (s *Store) SetLevels(table approval.LevelTable) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.ref.levels[table.CompanyID()] = table
}

// SetApprovers replaces the approvers of a level.
func (s *Store) SetApprovers(companyID, levelID string, users ...string) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	byLevel, ok := s.ref.approvers[companyID]
	if !ok {
		byLevel = make(map[string][]string)
		s.ref.approvers[companyID] = byLevel
	}
	byLevel[levelID] = append([]string(nil), users...)
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Ledgers(_ context.Context, companyID string) ([]ledgers.Ledger, error) {
	r.s.refMu.RLock()
	defer r.s.refMu.RUnlock()
	out := append([]ledgers.Ledger(nil), r.s.ref.ledgers[companyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ledgerRepo) Rules(_ context.Context, companyID, sourceLedger, targetLedger string) ([]ledgers.DerivationRule, error) {
	r.s.refMu.RLock()
	defer r.s.refMu.RUnlock()
	var out []ledgers.DerivationRule
	for _, rule := range r.s.ref.rules {
		if rule.CompanyID == companyID && rule.SourceLedger == sourceLedger && rule.TargetLedger == targetLedger {
			out = append(out, rule)
		}
	}
	return out, nil
}

type accountDir struct{ s *Store }

func (d accountDir) Exists(_ context.Context, companyID, accountID string) (bool, error) {
	d.s.refMu.RLock()
	defer d.s.refMu.RUnlock()
	a, ok := d.s.ref.accounts[companyID][accountID]
	return ok && a.IsActive, nil
}

func (d accountDir) Group(_ context.Context, companyID, accountID string) (string, error) {
	d.s.refMu.RLock()
	defer d.s.refMu.RUnlock()
	return d.s.ref.accounts[companyID][accountID].GroupID, nil
}

type periodDir struct{ s *Store }

func (d periodDir) Status(_ context.Context, companyID string, year, period int) (periods.State, error) {
	d.s.refMu.RLock()
	defer d.s.refMu.RUnlock()
	state, ok := d.s.ref.periods[periodKey{companyID, year, period}]
	if !ok {
		return periods.State{CompanyID: companyID, FiscalYear: year, Period: period, Status: periods.StatusClosed}, nil
	}
	return state, nil
}

type approverDir struct{ s *Store }

func (d approverDir) ApproversForLevel(_ context.Context, companyID, levelID string) ([]string, error) {
	d.s.refMu.RLock()
	defer d.s.refMu.RUnlock()
	return append([]string(nil), d.s.ref.approvers[companyID][levelID]...), nil
}

func (s *Store) levelTable(companyID string) (approval.LevelTable, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	table, ok := s.ref.levels[companyID]
	if !ok {
		return approval.LevelTable{}, approval.ErrNoLevels
	}
	return table, nil
}
