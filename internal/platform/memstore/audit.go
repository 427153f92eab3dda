package memstore

import (
	"context"

	"github.com/odyssey-erp/odyssey-gl/internal/audit"
)

type auditRepo struct{ s *Store }

func (r auditRepo) Append(ctx context.Context, entry audit.Entry) error {
	return r.s.update(ctx, func(st *state) error {
		st.audit = append(st.audit, entry)
		return nil
	})
}

func (r auditRepo) ListByDocument(_ context.Context, documentID string) ([]audit.Entry, error) {
	var out []audit.Entry
	r.s.read(func(st *state) {
		for _, e := range st.audit {
			if e.DocumentID == documentID {
				out = append(out, e)
			}
		}
	})
	return out, nil
}
