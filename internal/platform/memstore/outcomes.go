package memstore

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
)

type outcomeRepo struct{ s *Store }

func (r outcomeRepo) SaveOutcomes(ctx context.Context, source journals.DocumentID, outcomes []parallel.TargetOutcome) error {
	return r.s.update(ctx, func(st *state) error {
		byLedger, ok := st.outcomes[source]
		if !ok {
			byLedger = make(map[string]parallel.TargetOutcome, len(outcomes))
			st.outcomes[source] = byLedger
		}
		for _, o := range outcomes {
			byLedger[o.LedgerID] = o
		}
		return nil
	})
}

func (r outcomeRepo) Outcomes(_ context.Context, source journals.DocumentID) ([]parallel.TargetOutcome, error) {
	var out []parallel.TargetOutcome
	r.s.read(func(st *state) {
		for _, o := range st.outcomes[source] {
			out = append(out, o)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out, nil
}
