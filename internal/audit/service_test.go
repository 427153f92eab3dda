package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stubTrailRepo struct {
	rows []Entry
}

func (s *stubTrailRepo) Append(_ context.Context, entry Entry) error {
	s.rows = append(s.rows, entry)
	return nil
}

func (s *stubTrailRepo) ListByDocument(_ context.Context, documentID string) ([]Entry, error) {
	var out []Entry
	for _, row := range s.rows {
		if row.DocumentID == documentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestServiceRecordStampsEntry(t *testing.T) {
	repo := &stubTrailRepo{}
	svc := NewService(repo, nil)
	fixed := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })

	if err := svc.Record(context.Background(), Entry{DocumentID: "1000-JE-1", Action: ActionSubmit, Actor: "alice"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.rows))
	}
	row := repo.rows[0]
	if row.ID == "" || !row.At.Equal(fixed) || row.Status != StatusSuccess {
		t.Fatalf("entry not stamped: %+v", row)
	}
}

func TestServiceTrailPaging(t *testing.T) {
	repo := &stubTrailRepo{}
	svc := NewService(repo, nil)
	for _, action := range []Action{ActionSubmit, ActionApprove, ActionPost} {
		if err := svc.Record(context.Background(), Entry{DocumentID: "1000-JE-1", Action: action, Actor: "bob"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	_ = svc.Record(context.Background(), Entry{DocumentID: "1000-JE-2", Action: ActionSubmit, Actor: "bob"})

	result, err := svc.TrailFor(context.Background(), "1000-JE-1", TrailFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}

	result, err = svc.TrailFor(context.Background(), "1000-JE-1", TrailFilters{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0].Action != ActionPost || result.Paging.HasNext {
		t.Fatalf("unexpected second page: %+v", result)
	}

	result, err = svc.TrailFor(context.Background(), "1000-JE-1", TrailFilters{Action: ActionApprove})
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected action filter to keep 1 row, got %d", len(result.Rows))
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Entry{{
		DocumentID: "1000-JE-1",
		LedgerID:   "0L",
		Action:     ActionPost,
		Actor:      "bob",
		Amount:     decimal.NewFromInt(15000),
		Status:     StatusSuccess,
		At:         time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "15000.00") {
		t.Fatalf("amount not formatted: %s", lines[1])
	}
}
