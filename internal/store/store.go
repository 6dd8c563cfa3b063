package store

import (
	"context"

	"github.com/postwatch/postwatch/internal/model"
)

// Store is the durable cursor store. It owns every persisted entity: per
// account cursors, the rotating resume index, the pending-post queue and the
// error log. Each method is a single self-contained transaction; there is one
// writer at a time per task, so no multi-statement operation spans calls.
type Store interface {
	// GetCursor returns the last seen post id for an account, or nil if the
	// account has never completed a fetch.
	GetCursor(ctx context.Context, account string) (*string, error)
	// SetCursor upserts the last seen post id for an account.
	SetCursor(ctx context.Context, account, postID string) error
	// ListAccounts returns all tracked account cursors.
	ListAccounts(ctx context.Context) ([]model.AccountCursor, error)

	// GetResumeIndex returns the index of the last successfully processed
	// account, or 0 if unset.
	GetResumeIndex(ctx context.Context) (int, error)
	SetResumeIndex(ctx context.Context, idx int) error

	// EnqueuePending inserts an accepted post into the pending queue. It
	// returns false without error when the post id is already queued.
	EnqueuePending(ctx context.Context, p model.PendingPost) (bool, error)
	// OldestPending returns the pending post with the earliest observed_at,
	// or nil if the queue is empty. The row is not removed.
	OldestPending(ctx context.Context) (*model.PendingPost, error)
	RemovePending(ctx context.Context, postID string) error
	ListPending(ctx context.Context, limit int) ([]model.PendingPost, error)

	// RecordError appends to the error log. Never read back by control logic.
	RecordError(ctx context.Context, kind, message string, account *string) error
	RecentErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error)

	// Note appends a free-text operational log line. Observability only.
	Note(ctx context.Context, level, message string) error

	Ping(ctx context.Context) error
	Close()
}
