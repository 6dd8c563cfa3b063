package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Ensure SQLite implements Store interface
var _ store.Store = (*SQLite)(nil)

const resumeIndexKey = "resume_index"

// SQLite is the embedded store backend. A single connection serializes all
// writers, which is enough for the one-driver one-sweep access pattern.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

func init() {
	store.Register(Open, "sqlite", "file", "")
}

// Open opens or creates the database at the given URL (sqlite://path,
// file://path or a bare path) and bootstraps the schema.
func Open(ctx context.Context, rawURL string, _ int, logger *zap.Logger) (store.Store, error) {
	path := strings.TrimSpace(rawURL)
	for _, prefix := range []string{"sqlite://", "file://"} {
		if strings.HasPrefix(path, prefix) {
			path = strings.TrimPrefix(path, prefix)
			break
		}
	}
	inMemory := path == "" || path == ":memory:" || strings.Contains(path, "mode=memory")
	if path == "" {
		path = ":memory:"
	}
	if !inMemory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	s := &SQLite{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
            handle TEXT PRIMARY KEY,
            last_seen_id TEXT,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS pipeline_state (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS pending_posts (
            post_id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            account TEXT NOT NULL,
            posted_at TEXT NOT NULL,
            summary TEXT NOT NULL,
            decision TEXT NOT NULL,
            observed_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS errors (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            message TEXT NOT NULL,
            account TEXT,
            created_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS logs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            level TEXT NOT NULL,
            message TEXT NOT NULL,
            created_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_pending_posts_observed ON pending_posts(observed_at, post_id);`,
		`CREATE INDEX IF NOT EXISTS idx_errors_created ON errors(created_at);`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() { _ = s.db.Close() }

// Ping checks the database is reachable
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// timeLayout is fixed width, unlike RFC3339Nano which trims trailing zeros
// from the fraction. Stored timestamps sort as text, so ORDER BY on a time
// column only works when every value has the same number of digits.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// GetCursor returns the last seen post id for an account
func (s *SQLite) GetCursor(ctx context.Context, account string) (*string, error) {
	var id *string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_id FROM accounts WHERE handle = ?`, account).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return id, nil
}

// SetCursor upserts the last seen post id for an account
func (s *SQLite) SetCursor(ctx context.Context, account, postID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (handle, last_seen_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET last_seen_id = excluded.last_seen_id, updated_at = excluded.updated_at;`,
		account, postID, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ListAccounts lists all tracked account cursors
func (s *SQLite) ListAccounts(ctx context.Context) ([]model.AccountCursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT handle, last_seen_id, updated_at FROM accounts ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []model.AccountCursor
	for rows.Next() {
		var c model.AccountCursor
		var updated string
		if err := rows.Scan(&c.Account, &c.LastSeenID, &updated); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetResumeIndex returns the last successfully processed account index
func (s *SQLite) GetResumeIndex(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM pipeline_state WHERE key = ?`, resumeIndexKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get resume index: %w", err)
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse resume index %q: %w", v, err)
	}
	return idx, nil
}

// SetResumeIndex upserts the resume index
func (s *SQLite) SetResumeIndex(ctx context.Context, idx int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		resumeIndexKey, strconv.Itoa(idx), fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set resume index: %w", err)
	}
	return nil
}

// EnqueuePending inserts an accepted post, skipping duplicates
func (s *SQLite) EnqueuePending(ctx context.Context, pp model.PendingPost) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_posts (post_id, content, account, posted_at, summary, decision, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING;`,
		pp.Post.ID, pp.Post.Text, pp.Post.Account, fmtTime(pp.Post.CreatedAt),
		pp.Summary, pp.Decision, fmtTime(pp.ObservedAt))
	if err != nil {
		return false, fmt.Errorf("enqueue pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue pending rows affected: %w", err)
	}
	inserted := n == 1
	s.logger.Info("EnqueuePending", zap.String("post_id", pp.Post.ID), zap.Bool("inserted", inserted))
	return inserted, nil
}

func (s *SQLite) scanPending(row interface{ Scan(...any) error }) (*model.PendingPost, error) {
	var pp model.PendingPost
	var postedAt, observedAt string
	if err := row.Scan(&pp.Post.ID, &pp.Post.Text, &pp.Post.Account, &postedAt,
		&pp.Summary, &pp.Decision, &observedAt); err != nil {
		return nil, err
	}
	pp.Post.CreatedAt = parseTime(postedAt)
	pp.ObservedAt = parseTime(observedAt)
	return &pp, nil
}

// OldestPending returns the earliest observed pending post without removing it
func (s *SQLite) OldestPending(ctx context.Context) (*model.PendingPost, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT post_id, content, account, posted_at, summary, decision, observed_at
		FROM pending_posts
		ORDER BY observed_at ASC, post_id ASC
		LIMIT 1;`)
	pp, err := s.scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oldest pending: %w", err)
	}
	return pp, nil
}

// RemovePending deletes a pending post after confirmed delivery
func (s *SQLite) RemovePending(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_posts WHERE post_id = ?`, postID)
	if err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// ListPending lists queued posts, oldest first
func (s *SQLite) ListPending(ctx context.Context, limit int) ([]model.PendingPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, content, account, posted_at, summary, decision, observed_at
		FROM pending_posts
		ORDER BY observed_at ASC, post_id ASC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	var out []model.PendingPost
	for rows.Next() {
		pp, err := s.scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, *pp)
	}
	return out, rows.Err()
}

// RecordError appends to the error log
func (s *SQLite) RecordError(ctx context.Context, kind, message string, account *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO errors (id, kind, message, account, created_at)
		VALUES (?, ?, ?, ?, ?);`,
		uuid.New().String(), kind, message, account, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// RecentErrors lists the newest error records
func (s *SQLite) RecentErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, message, account, created_at
		FROM errors
		ORDER BY created_at DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}
	defer rows.Close()
	var out []model.ErrorRecord
	for rows.Next() {
		var r model.ErrorRecord
		var id, created string
		if err := rows.Scan(&id, &r.Kind, &r.Message, &r.Account, &created); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Note appends a free-text operational log line
func (s *SQLite) Note(ctx context.Context, level, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (level, message, created_at) VALUES (?, ?, ?);`,
		level, message, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("note: %w", err)
	}
	return nil
}
