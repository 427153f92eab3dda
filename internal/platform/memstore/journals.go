package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

type journalRepo struct{ s *Store }

func (r journalRepo) Insert(ctx context.Context, entry journals.JournalEntry) error {
	return r.s.update(ctx, func(st *state) error {
		return insertEntry(st, entry)
	})
}

func (r journalRepo) Get(_ context.Context, id journals.DocumentID) (journals.JournalEntry, error) {
	var (
		entry journals.JournalEntry
		ok    bool
	)
	r.s.read(func(st *state) {
		entry, ok = st.entries[id]
	})
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry.Clone(), nil
}

func (r journalRepo) UpdateParallelStatus(ctx context.Context, id journals.DocumentID, ledgerCount, successCount int) error {
	return r.s.update(ctx, func(st *state) error {
		entry, ok := st.entries[id]
		if !ok {
			return shared.ErrJournalNotFound
		}
		entry.ParallelPosted = true
		entry.ParallelLedgerCount = ledgerCount
		entry.ParallelSuccessCount = successCount
		st.entries[id] = entry
		return nil
	})
}

func (r journalRepo) ListPosted(_ context.Context, since time.Time, limit int) ([]journals.JournalEntry, error) {
	var out []journals.JournalEntry
	r.s.read(func(st *state) {
		for _, entry := range st.entries {
			if entry.PostedAt != nil && !entry.PostedAt.Before(since) {
				out = append(out, entry.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(*out[j].PostedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func insertEntry(st *state, entry journals.JournalEntry) error {
	if _, ok := st.entries[entry.ID]; ok {
		return shared.ErrDuplicateDocument
	}
	st.entries[entry.ID] = entry.Clone()
	return nil
}

func lockEntry(st *state, id journals.DocumentID) (journals.JournalEntry, error) {
	entry, ok := st.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return entry.Clone(), nil
}

func setEntryStatus(st *state, id journals.DocumentID, status journals.Status) error {
	entry, ok := st.entries[id]
	if !ok {
		return shared.ErrJournalNotFound
	}
	entry.Status = status
	st.entries[id] = entry
	return nil
}
