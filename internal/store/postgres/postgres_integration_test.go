//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	upPath := filepath.Join("..", "migrations", "0001_init.up.sql")
	b, err := os.ReadFile(upPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(context.Background(), string(b)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
}

func TestPostgres_CRUD(t *testing.T) {
	url := os.Getenv("PG_URL")
	if url == "" {
		t.Skip("PG_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	applyMigrations(t, s.(*Postgres).pool)

	if err := s.SetCursor(ctx, "it_alpha", "10"); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	cur, err := s.GetCursor(ctx, "it_alpha")
	if err != nil || cur == nil || *cur != "10" {
		t.Fatalf("get cursor: %v %v", cur, err)
	}

	if err := s.SetResumeIndex(ctx, 2); err != nil {
		t.Fatalf("set resume index: %v", err)
	}
	idx, err := s.GetResumeIndex(ctx)
	if err != nil || idx != 2 {
		t.Fatalf("get resume index: %d %v", idx, err)
	}

	pp := model.PendingPost{
		Post:       model.Post{ID: "it_p1", Text: "x", Account: "it_alpha", CreatedAt: time.Now().UTC()},
		Summary:    "s",
		Decision:   "TRUE",
		ObservedAt: time.Now().UTC(),
	}
	inserted, err := s.EnqueuePending(ctx, pp)
	if err != nil || !inserted {
		t.Fatalf("enqueue: %v %v", inserted, err)
	}
	inserted, err = s.EnqueuePending(ctx, pp)
	if err != nil || inserted {
		t.Fatalf("duplicate enqueue should be a no-op: %v %v", inserted, err)
	}
	oldest, err := s.OldestPending(ctx)
	if err != nil || oldest == nil {
		t.Fatalf("oldest pending: %v %v", oldest, err)
	}
	if err := s.RemovePending(ctx, "it_p1"); err != nil {
		t.Fatalf("remove pending: %v", err)
	}
}
