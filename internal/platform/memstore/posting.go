package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

type postingRepo struct{ s *Store }

func (r postingRepo) WithTx(ctx context.Context, fn func(context.Context, posting.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, postingTx{st: st})
	})
}

func (r postingRepo) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return r.s.update(ctx, func(st *state) error {
		st.audit = append(st.audit, entry)
		return nil
	})
}

type postingTx struct{ st *state }

func (t postingTx) InsertDerived(_ context.Context, entry journals.JournalEntry) error {
	if _, ok := t.st.entries[entry.ID]; ok {
		return nil
	}
	return insertEntry(t.st, entry)
}

func (t postingTx) LockEntry(_ context.Context, id journals.DocumentID) (journals.JournalEntry, error) {
	return lockEntry(t.st, id)
}

func (t postingTx) InsertDocument(_ context.Context, doc posting.Document) error {
	key := postingKey{document: doc.DocumentID, ledger: doc.LedgerID}
	if _, ok := t.st.postings[key]; ok {
		return fmt.Errorf("posting document %s/%s: %w", doc.DocumentID, doc.LedgerID, shared.ErrAlreadyPosted)
	}
	t.st.postings[key] = doc
	return nil
}

func (t postingTx) InsertTransactions(_ context.Context, lines []posting.Transaction) error {
	t.st.txns = append(t.st.txns, lines...)
	return nil
}

func (t postingTx) ApplyBalance(_ context.Context, delta balances.Delta) error {
	balances.ApplyDelta(t.st.balances, delta)
	return nil
}

func (t postingTx) MarkPosted(_ context.Context, id journals.DocumentID, postedBy string, at time.Time) error {
	entry, ok := t.st.entries[id]
	if !ok {
		return shared.ErrJournalNotFound
	}
	if entry.PostedAt != nil {
		return shared.ErrAlreadyPosted
	}
	postedAt := at
	entry.Status = journals.StatusPosted
	entry.PostedBy = postedBy
	entry.PostedAt = &postedAt
	t.st.entries[id] = entry
	return nil
}

func (t postingTx) AppendAudit(_ context.Context, entry audit.Entry) error {
	t.st.audit = append(t.st.audit, entry)
	return nil
}
