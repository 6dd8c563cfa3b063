package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(context.Background(), "sqlite://"+path, 1, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s.(*SQLite)
}

func pending(id string, observed time.Time) model.PendingPost {
	return model.PendingPost{
		Post: model.Post{
			ID:        id,
			Text:      "text " + id,
			Account:   "acct",
			CreatedAt: observed.Add(-time.Minute),
		},
		Summary:    "summary",
		Decision:   "TRUE",
		ObservedAt: observed,
	}
}

func TestCursor_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetCursor(ctx, "alpha")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil cursor for unknown account, got %q", *got)
	}

	if err := s.SetCursor(ctx, "alpha", "100"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := s.SetCursor(ctx, "alpha", "200"); err != nil {
		t.Fatalf("set cursor again: %v", err)
	}
	got, err = s.GetCursor(ctx, "alpha")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if got == nil || *got != "200" {
		t.Fatalf("expected cursor 200, got %v", got)
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Account != "alpha" {
		t.Fatalf("unexpected accounts: %#v", accounts)
	}
}

func TestResumeIndex_DefaultAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idx, err := s.GetResumeIndex(ctx)
	if err != nil {
		t.Fatalf("get resume index: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected default 0, got %d", idx)
	}
	for _, want := range []int{3, -1, 7} {
		if err := s.SetResumeIndex(ctx, want); err != nil {
			t.Fatalf("set resume index: %v", err)
		}
		idx, err = s.GetResumeIndex(ctx)
		if err != nil {
			t.Fatalf("get resume index: %v", err)
		}
		if idx != want {
			t.Fatalf("expected %d, got %d", want, idx)
		}
	}
}

func TestEnqueuePending_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pp := pending("p1", time.Now().UTC())

	inserted, err := s.EnqueuePending(ctx, pp)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !inserted {
		t.Fatal("expected first enqueue to insert")
	}
	inserted, err = s.EnqueuePending(ctx, pp)
	if err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate enqueue to be a no-op")
	}
	got, err := s.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one pending post, got %d", len(got))
	}
}

func TestOldestPending_OrderAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order.
	for _, pp := range []model.PendingPost{
		pending("later", base.Add(time.Hour)),
		pending("earliest", base),
		pending("middle", base.Add(30 * time.Minute)),
	} {
		if _, err := s.EnqueuePending(ctx, pp); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	oldest, err := s.OldestPending(ctx)
	if err != nil {
		t.Fatalf("oldest pending: %v", err)
	}
	if oldest == nil || oldest.Post.ID != "earliest" {
		t.Fatalf("expected earliest first, got %#v", oldest)
	}

	if err := s.RemovePending(ctx, oldest.Post.ID); err != nil {
		t.Fatalf("remove pending: %v", err)
	}
	oldest, err = s.OldestPending(ctx)
	if err != nil {
		t.Fatalf("oldest pending after remove: %v", err)
	}
	if oldest == nil || oldest.Post.ID != "middle" {
		t.Fatalf("expected middle after removal, got %#v", oldest)
	}
}

func TestOldestPending_SubSecondOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 120ms formats with trailing zeros that a trimming layout would drop,
	// making the stored text sort after the 123ms value.
	for _, pp := range []model.PendingPost{
		pending("newer", base.Add(123*time.Millisecond)),
		pending("older", base.Add(120*time.Millisecond)),
	} {
		if _, err := s.EnqueuePending(ctx, pp); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	oldest, err := s.OldestPending(ctx)
	if err != nil {
		t.Fatalf("oldest pending: %v", err)
	}
	if oldest == nil || oldest.Post.ID != "older" {
		t.Fatalf("expected the 120ms post first, got %#v", oldest)
	}
	if !oldest.ObservedAt.Equal(base.Add(120 * time.Millisecond)) {
		t.Fatalf("observed_at did not round-trip: %v", oldest.ObservedAt)
	}
}

func TestOldestPending_Empty(t *testing.T) {
	s := newTestStore(t)
	pp, err := s.OldestPending(context.Background())
	if err != nil {
		t.Fatalf("oldest pending: %v", err)
	}
	if pp != nil {
		t.Fatalf("expected nil on empty queue, got %#v", pp)
	}
}

func TestRecordError_And_Note(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acct := "alpha"

	if err := s.RecordError(ctx, "fetch_error", "boom", &acct); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := s.RecordError(ctx, "pipeline_error", "bang", nil); err != nil {
		t.Fatalf("record error: %v", err)
	}
	errs, err := s.RecentErrors(ctx, 10)
	if err != nil {
		t.Fatalf("recent errors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if err := s.Note(ctx, "info", "pass completed"); err != nil {
		t.Fatalf("note: %v", err)
	}
}
