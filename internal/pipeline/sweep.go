package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/notify"

	"go.uber.org/zap"
)

// ErrQueueEmpty is returned by DeliverOne when no pending post is queued.
var ErrQueueEmpty = errors.New("pending queue is empty")

// SweepStore is the subset of the cursor store the sweep needs.
type SweepStore interface {
	OldestPending(ctx context.Context) (*model.PendingPost, error)
	RemovePending(ctx context.Context, postID string) error
	RecordError(ctx context.Context, kind, message string, account *string) error
}

// DeliveredCache marks posts as delivered in a shared cache. Optional.
type DeliveredCache interface {
	SetDelivered(ctx context.Context, postID string, deliveredAt time.Time, ttl time.Duration) error
}

// Sweep drains the pending queue oldest first, one post per call. A post is
// removed only after the webhook confirms delivery, so a crash between send
// and remove means a redeliver, never a loss.
type Sweep struct {
	store    SweepStore
	notifier notify.Notifier
	cache    DeliveredCache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewSweep creates a queue sweep. cache may be nil.
func NewSweep(st SweepStore, n notify.Notifier, cache DeliveredCache, cacheTTL time.Duration, log *zap.Logger) *Sweep {
	return &Sweep{store: st, notifier: n, cache: cache, cacheTTL: cacheTTL, log: log}
}

// DeliverOne delivers the oldest pending post. Returns ErrQueueEmpty without
// touching the network when nothing is queued. On delivery failure the post
// stays queued and the error is recorded.
func (s *Sweep) DeliverOne(ctx context.Context) (*model.PendingPost, error) {
	item, err := s.store.OldestPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pending queue: %w", err)
	}
	if item == nil {
		return nil, ErrQueueEmpty
	}

	if err := s.notifier.Deliver(ctx, *item); err != nil {
		s.log.Error("delivery failed, post stays queued",
			zap.String("post_id", item.Post.ID),
			zap.Error(err))
		if rerr := s.store.RecordError(ctx, "delivery_error", err.Error(), &item.Post.Account); rerr != nil {
			s.log.Error("failed to record delivery error", zap.Error(rerr))
		}
		return nil, err
	}

	if err := s.store.RemovePending(ctx, item.Post.ID); err != nil {
		return nil, fmt.Errorf("remove delivered post %s: %w", item.Post.ID, err)
	}
	if s.cache != nil {
		if err := s.cache.SetDelivered(ctx, item.Post.ID, time.Now().UTC(), s.cacheTTL); err != nil {
			s.log.Warn("failed to cache delivery", zap.String("post_id", item.Post.ID), zap.Error(err))
		}
	}
	s.log.Info("post delivered", zap.String("post_id", item.Post.ID), zap.String("account", item.Post.Account))
	return item, nil
}

// DrainAll delivers until the queue is empty or a delivery fails. Returns the
// number delivered.
func (s *Sweep) DrainAll(ctx context.Context) (int, error) {
	var n int
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		_, err := s.DeliverOne(ctx)
		if errors.Is(err, ErrQueueEmpty) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
