package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Ensure Postgres implements Store interface
var _ store.Store = (*Postgres)(nil)

const resumeIndexKey = "resume_index"

// Postgres is the postgres store implementation
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func init() {
	store.Register(Open, "postgres", "postgresql")
}

// Open creates a new postgres store
func Open(ctx context.Context, url string, maxOpen int, logger *zap.Logger) (store.Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		logger.Error("pgx parse config error", zap.Error(err))
		return nil, err
	}
	cfg.MaxConns = int32(maxOpen)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		logger.Error("pgx pool error", zap.Error(err))
		return nil, err
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close closes the postgres store
func (p *Postgres) Close() { p.pool.Close() }

// Ping checks connectivity
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// GetCursor returns the last seen post id for an account
func (p *Postgres) GetCursor(ctx context.Context, account string) (*string, error) {
	var id *string
	err := p.pool.QueryRow(ctx, `
		SELECT last_seen_id FROM accounts WHERE handle=$1
	`, account).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		p.logger.Error("GetCursor fail", zap.String("account", account), zap.Error(err))
		return nil, err
	}
	return id, nil
}

// SetCursor upserts the last seen post id for an account
func (p *Postgres) SetCursor(ctx context.Context, account, postID string) error {
	p.logger.Debug("SetCursor", zap.String("account", account), zap.String("post_id", postID))
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (handle, last_seen_id, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (handle) DO UPDATE SET last_seen_id=excluded.last_seen_id, updated_at=now()
	`, account, postID)
	if err != nil {
		p.logger.Error("SetCursor fail", zap.Error(err))
	}
	return err
}

// ListAccounts lists all tracked account cursors
func (p *Postgres) ListAccounts(ctx context.Context) ([]model.AccountCursor, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT handle, last_seen_id, updated_at FROM accounts ORDER BY handle
	`)
	if err != nil {
		p.logger.Error("ListAccounts query fail", zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	var out []model.AccountCursor
	for rows.Next() {
		var c model.AccountCursor
		if err := rows.Scan(&c.Account, &c.LastSeenID, &c.UpdatedAt); err != nil {
			p.logger.Error("ListAccounts scan fail", zap.Error(err))
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetResumeIndex returns the last successfully processed account index
func (p *Postgres) GetResumeIndex(ctx context.Context) (int, error) {
	var v string
	err := p.pool.QueryRow(ctx, `
		SELECT value FROM pipeline_state WHERE key=$1
	`, resumeIndexKey).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		p.logger.Error("GetResumeIndex fail", zap.Error(err))
		return 0, err
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		p.logger.Error("GetResumeIndex parse fail", zap.String("value", v), zap.Error(err))
		return 0, err
	}
	return idx, nil
}

// SetResumeIndex upserts the resume index
func (p *Postgres) SetResumeIndex(ctx context.Context, idx int) error {
	p.logger.Debug("SetResumeIndex", zap.Int("index", idx))
	_, err := p.pool.Exec(ctx, `
		INSERT INTO pipeline_state (key, value, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, updated_at=now()
	`, resumeIndexKey, strconv.Itoa(idx))
	if err != nil {
		p.logger.Error("SetResumeIndex fail", zap.Error(err))
	}
	return err
}

// EnqueuePending inserts an accepted post, skipping duplicates
func (p *Postgres) EnqueuePending(ctx context.Context, pp model.PendingPost) (bool, error) {
	ct, err := p.pool.Exec(ctx, `
		INSERT INTO pending_posts (post_id, content, account, posted_at, summary, decision, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (post_id) DO NOTHING
	`, pp.Post.ID, pp.Post.Text, pp.Post.Account, pp.Post.CreatedAt, pp.Summary, pp.Decision, pp.ObservedAt)
	if err != nil {
		p.logger.Error("EnqueuePending fail", zap.String("post_id", pp.Post.ID), zap.Error(err))
		return false, err
	}
	inserted := ct.RowsAffected() == 1
	p.logger.Info("EnqueuePending", zap.String("post_id", pp.Post.ID), zap.Bool("inserted", inserted))
	return inserted, nil
}

// OldestPending returns the earliest observed pending post without removing it
func (p *Postgres) OldestPending(ctx context.Context) (*model.PendingPost, error) {
	var pp model.PendingPost
	err := p.pool.QueryRow(ctx, `
		SELECT post_id, content, account, posted_at, summary, decision, observed_at
		FROM pending_posts
		ORDER BY observed_at ASC, post_id ASC
		LIMIT 1
	`).Scan(&pp.Post.ID, &pp.Post.Text, &pp.Post.Account, &pp.Post.CreatedAt, &pp.Summary, &pp.Decision, &pp.ObservedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		p.logger.Error("OldestPending fail", zap.Error(err))
		return nil, err
	}
	return &pp, nil
}

// RemovePending deletes a pending post after confirmed delivery
func (p *Postgres) RemovePending(ctx context.Context, postID string) error {
	p.logger.Info("RemovePending", zap.String("post_id", postID))
	_, err := p.pool.Exec(ctx, `DELETE FROM pending_posts WHERE post_id=$1`, postID)
	if err != nil {
		p.logger.Error("RemovePending fail", zap.Error(err))
	}
	return err
}

// ListPending lists queued posts, oldest first
func (p *Postgres) ListPending(ctx context.Context, limit int) ([]model.PendingPost, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT post_id, content, account, posted_at, summary, decision, observed_at
		FROM pending_posts
		ORDER BY observed_at ASC, post_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		p.logger.Error("ListPending query fail", zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	var out []model.PendingPost
	for rows.Next() {
		var pp model.PendingPost
		if err := rows.Scan(&pp.Post.ID, &pp.Post.Text, &pp.Post.Account, &pp.Post.CreatedAt, &pp.Summary, &pp.Decision, &pp.ObservedAt); err != nil {
			p.logger.Error("ListPending scan fail", zap.Error(err))
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

// RecordError appends to the error log
func (p *Postgres) RecordError(ctx context.Context, kind, message string, account *string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO errors (id, kind, message, account, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.New(), kind, message, account, time.Now().UTC())
	if err != nil {
		p.logger.Error("RecordError fail", zap.Error(err))
	}
	return err
}

// Note appends a free-text operational log line
func (p *Postgres) Note(ctx context.Context, level, message string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO logs (level, message) VALUES ($1,$2)
	`, level, message)
	if err != nil {
		p.logger.Error("Note fail", zap.Error(err))
	}
	return err
}

// RecentErrors lists the newest error records
func (p *Postgres) RecentErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, kind, message, account, created_at
		FROM errors
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		p.logger.Error("RecentErrors query fail", zap.Error(err))
		return nil, err
	}
	defer rows.Close()
	var out []model.ErrorRecord
	for rows.Next() {
		var r model.ErrorRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.Message, &r.Account, &r.CreatedAt); err != nil {
			p.logger.Error("RecentErrors scan fail", zap.Error(err))
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
