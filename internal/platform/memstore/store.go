// Package memstore keeps every GL table in process memory behind the same repository
// interfaces as the Postgres engine. Writes run as clone-and-swap transactions under a single
// lock; reference data lives under its own lock so it can be read inside a transaction.
package memstore

import (
	"context"
	"sync"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

type postingKey struct {
	document journals.DocumentID
	ledger   string
}

type periodKey struct {
	company string
	year    int
	period  int
}

type state struct {
	entries   map[journals.DocumentID]journals.JournalEntry
	postings  map[postingKey]posting.Document
	txns      []posting.Transaction
	balances  map[balances.Key]balances.AccountBalance
	audit     []audit.Entry
	workflows map[string]approval.WorkflowInstance
	steps     map[string][]approval.ApprovalStep
	outcomes  map[journals.DocumentID]map[string]parallel.TargetOutcome
}

func newState() *state {
	return &state{
		entries:   make(map[journals.DocumentID]journals.JournalEntry),
		postings:  make(map[postingKey]posting.Document),
		balances:  make(map[balances.Key]balances.AccountBalance),
		workflows: make(map[string]approval.WorkflowInstance),
		steps:     make(map[string][]approval.ApprovalStep),
		outcomes:  make(map[journals.DocumentID]map[string]parallel.TargetOutcome),
	}
}

func (s *state) clone() *state {
	out := &state{
		entries:   make(map[journals.DocumentID]journals.JournalEntry, len(s.entries)),
		postings:  make(map[postingKey]posting.Document, len(s.postings)),
		txns:      append([]posting.Transaction(nil), s.txns...),
		balances:  make(map[balances.Key]balances.AccountBalance, len(s.balances)),
		audit:     append([]audit.Entry(nil), s.audit...),
		workflows: make(map[string]approval.WorkflowInstance, len(s.workflows)),
		steps:     make(map[string][]approval.ApprovalStep, len(s.steps)),
		outcomes:  make(map[journals.DocumentID]map[string]parallel.TargetOutcome, len(s.outcomes)),
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.postings {
		out.postings[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.workflows {
		out.workflows[k] = v
	}
	for k, v := range s.steps {
		out.steps[k] = append([]approval.ApprovalStep(nil), v...)
	}
	for k, v := range s.outcomes {
		inner := make(map[string]parallel.TargetOutcome, len(v))
		for lk, lv := range v {
			inner[lk] = lv
		}
		out.outcomes[k] = inner
	}
	return out
}

type reference struct {
	ledgers   map[string][]ledgers.Ledger
	rules     []ledgers.DerivationRule
	accounts  map[string]map[string]accounts.Account
	periods   map[periodKey]periods.State
	levels    map[string]approval.LevelTable
	approvers map[string]map[string][]string
}

// Store is the in-memory engine.
type Store struct {
	mu    sync.RWMutex
	data  *state
	refMu sync.RWMutex
	ref   reference
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data: newState(),
		ref: reference{
			ledgers:   make(map[string][]ledgers.Ledger),
			accounts:  make(map[string]map[string]accounts.Account),
			periods:   make(map[periodKey]periods.State),
			levels:    make(map[string]approval.LevelTable),
			approvers: make(map[string]map[string][]string),
		},
	}
}

// update runs fn against a copy of the state and publishes it only when fn succeeds.
func (s *Store) update(ctx context.Context, fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	draft := s.data.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.data = draft
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// Journals exposes the journal repository.
func (s *Store) Journals() journals.Repository { return journalRepo{s} }

// Ledgers exposes ledger configuration.
func (s *Store) Ledgers() ledgers.Repository { return ledgerRepo{s} }

// Accounts exposes the chart of accounts.
func (s *Store) Accounts() accounts.Directory { return accountDir{s} }

// Periods exposes fiscal period states.
func (s *Store) Periods() periods.Directory { return periodDir{s} }

// Balances exposes balance lookups.
func (s *Store) Balances() balances.Store { return balanceStore{s} }

// Audit exposes the audit trail.
func (s *Store) Audit() audit.Repository { return auditRepo{s} }

// Postings exposes the posting repository.
func (s *Store) Postings() posting.Repository { return postingRepo{s} }

// Outcomes exposes fanout outcomes.
func (s *Store) Outcomes() parallel.Repository { return outcomeRepo{s} }

// Approvals exposes the approval repository.
func (s *Store) Approvals() approval.Repository { return approvalRepo{s} }

// Approvers exposes the approver directory.
func (s *Store) Approvers() approval.ApproverDirectory { return approverDir{s} }

// PostingDocuments returns the posted headers of a document across ledgers.
func (s *Store) PostingDocuments(id journals.DocumentID) []posting.Document {
	var out []posting.Document
	s.read(func(st *state) {
		for k, doc := range st.postings {
			if k.document == id {
				out = append(out, doc)
			}
		}
	})
	return out
}

// Transactions returns the GL lines of a posting document.
func (s *Store) Transactions(postingID string) []posting.Transaction {
	var out []posting.Transaction
	s.read(func(st *state) {
		for _, t := range st.txns {
			if t.PostingID.String() == postingID {
				out = append(out, t)
			}
		}
	})
	return out
}
