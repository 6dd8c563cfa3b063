package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/postwatch/postwatch/internal/classify"
	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/ratelimit"
	"github.com/postwatch/postwatch/internal/source"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCoolingDown is returned by RunPass while the rate-limit guard holds.
var ErrCoolingDown = errors.New("poller cooling down after rate limit")

// ErrNoAccounts is returned when the account source yields nothing to poll.
var ErrNoAccounts = errors.New("no accounts to poll")

// Store is the subset of the cursor store the driver needs.
type Store interface {
	GetCursor(ctx context.Context, account string) (*string, error)
	SetCursor(ctx context.Context, account, postID string) error
	GetResumeIndex(ctx context.Context) (int, error)
	SetResumeIndex(ctx context.Context, idx int) error
	EnqueuePending(ctx context.Context, p model.PendingPost) (bool, error)
	RecordError(ctx context.Context, kind, message string, account *string) error
	Note(ctx context.Context, level, message string) error
}

// Config holds the per-pass tuning knobs.
type Config struct {
	// MaxItemsPerAccount caps a single fetch; clamped by the content source.
	MaxItemsPerAccount int
	// Cycle resets the resume index after a complete pass so the next pass
	// starts over from the first account.
	Cycle bool
}

// Summary reports what a single pass did.
type Summary struct {
	RunID       uuid.UUID
	Accounts    int
	Scanned     int
	Fetched     int
	Accepted    int
	Enqueued    int
	Duplicates  int
	FetchErrors int
	RateLimited bool
}

// Driver runs one polling pass: rotate through the accounts starting after
// the resume index, fetch new posts per account, classify the haul and
// enqueue accepted posts for delivery.
type Driver struct {
	cfg      Config
	accounts source.AccountSource
	content  source.ContentSource
	relay    *classify.Relay
	guard    *ratelimit.Guard
	store    Store
	log      *zap.Logger
}

// New creates a pass driver.
func New(cfg Config, accounts source.AccountSource, content source.ContentSource, relay *classify.Relay, guard *ratelimit.Guard, st Store, log *zap.Logger) *Driver {
	return &Driver{
		cfg:      cfg,
		accounts: accounts,
		content:  content,
		relay:    relay,
		guard:    guard,
		store:    st,
		log:      log,
	}
}

// RunPass executes one polling pass. A rate-limited fetch ends the scan early
// without advancing the resume index or the account cursor; posts fetched
// before the cut still flow through classification and enqueue.
func (d *Driver) RunPass(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.New()}
	log := d.log.With(zap.String("run_id", sum.RunID.String()))

	if d.guard.CoolingDown() {
		log.Info("skipping pass, cooling down", zap.Duration("remaining", d.guard.Remaining()))
		return sum, ErrCoolingDown
	}

	handles, err := d.accounts.List(ctx)
	if err != nil {
		return sum, fmt.Errorf("list accounts: %w", err)
	}
	if len(handles) == 0 {
		return sum, ErrNoAccounts
	}
	sum.Accounts = len(handles)

	resume, err := d.store.GetResumeIndex(ctx)
	if err != nil {
		return sum, fmt.Errorf("read resume index: %w", err)
	}
	n := len(handles)
	start := ((resume+1)%n + n) % n
	log.Info("starting pass", zap.Int("accounts", n), zap.Int("resume_index", resume), zap.Int("start_index", start))

	var haul []model.Post
	last := -1
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		idx := (start + i) % n
		account := handles[idx]

		cursor, err := d.store.GetCursor(ctx, account)
		if err != nil {
			return sum, fmt.Errorf("read cursor for %s: %w", account, err)
		}

		posts, err := d.content.FetchSince(ctx, account, cursor, d.cfg.MaxItemsPerAccount)
		switch {
		case errors.Is(err, source.ErrRateLimited):
			var rl *source.RateLimitedError
			wait := d.guard.Fallback()
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
			d.guard.CoolDownFor(wait)
			sum.RateLimited = true
			log.Warn("rate limited, ending scan early",
				zap.String("account", account),
				zap.Duration("cooldown", wait))
			if rerr := d.store.RecordError(ctx, "rate_limited", err.Error(), &account); rerr != nil {
				log.Error("failed to record rate limit", zap.Error(rerr))
			}
		case err != nil:
			sum.FetchErrors++
			log.Warn("fetch failed", zap.String("account", account), zap.Error(err))
			if rerr := d.store.RecordError(ctx, "fetch_error", err.Error(), &account); rerr != nil {
				log.Error("failed to record fetch error", zap.Error(rerr))
			}
			if serr := d.store.SetResumeIndex(ctx, idx); serr != nil {
				return sum, fmt.Errorf("advance resume index: %w", serr)
			}
			last = idx
			sum.Scanned++
			continue
		case len(posts) == 0:
			if serr := d.store.SetResumeIndex(ctx, idx); serr != nil {
				return sum, fmt.Errorf("advance resume index: %w", serr)
			}
			last = idx
			sum.Scanned++
			continue
		default:
			haul = append(haul, posts...)
			sum.Fetched += len(posts)
			if serr := d.store.SetCursor(ctx, account, latestID(posts)); serr != nil {
				return sum, fmt.Errorf("advance cursor for %s: %w", account, serr)
			}
			if serr := d.store.SetResumeIndex(ctx, idx); serr != nil {
				return sum, fmt.Errorf("advance resume index: %w", serr)
			}
			last = idx
			sum.Scanned++
			log.Debug("fetched posts", zap.String("account", account), zap.Int("count", len(posts)))
			continue
		}
		break
	}

	d.flush(ctx, log, haul, &sum)

	// Reset only when the pass finished on the list's final account. A pass
	// that wrapped after a mid-list start ends earlier and keeps its rotation
	// position instead of snapping back to account 0.
	if !sum.RateLimited && d.cfg.Cycle && last == n-1 {
		if err := d.store.SetResumeIndex(ctx, -1); err != nil {
			return sum, fmt.Errorf("reset resume index: %w", err)
		}
	}

	msg := fmt.Sprintf("pass %s: scanned %d/%d accounts, fetched %d, enqueued %d (rate_limited=%t)",
		sum.RunID, sum.Scanned, sum.Accounts, sum.Fetched, sum.Enqueued, sum.RateLimited)
	if err := d.store.Note(ctx, "info", msg); err != nil {
		log.Warn("failed to note pass summary", zap.Error(err))
	}
	log.Info("pass finished",
		zap.Int("scanned", sum.Scanned),
		zap.Int("fetched", sum.Fetched),
		zap.Int("accepted", sum.Accepted),
		zap.Int("enqueued", sum.Enqueued),
		zap.Bool("rate_limited", sum.RateLimited))
	return sum, nil
}

// flush runs the fetched posts through classification and enqueues accepted
// ones. Runs even on an early rate-limit cut so partial progress survives.
func (d *Driver) flush(ctx context.Context, log *zap.Logger, haul []model.Post, sum *Summary) {
	if len(haul) == 0 {
		return
	}
	verdicts := classify.Accepted(d.relay.ClassifyBatch(ctx, haul))
	sum.Accepted = len(verdicts)
	for _, v := range verdicts {
		pending, err := model.NewPendingPost(v.Post, v.Decision, v.Reasoning)
		if err != nil {
			log.Warn("skipping unqueueable post", zap.String("post_id", v.Post.ID), zap.Error(err))
			continue
		}
		inserted, err := d.store.EnqueuePending(ctx, *pending)
		if err != nil {
			log.Error("enqueue failed", zap.String("post_id", v.Post.ID), zap.Error(err))
			if rerr := d.store.RecordError(ctx, "enqueue_error", err.Error(), &v.Post.Account); rerr != nil {
				log.Error("failed to record enqueue error", zap.Error(rerr))
			}
			continue
		}
		if !inserted {
			sum.Duplicates++
			log.Debug("post already queued", zap.String("post_id", v.Post.ID))
			continue
		}
		sum.Enqueued++
	}
}

// latestID picks the newest post id from a non-empty batch: the numeric max
// when every id is numeric, otherwise the last item, since sources return
// oldest first and opaque ids (feed GUIDs) do not order.
func latestID(posts []model.Post) string {
	var max uint64
	for i, p := range posts {
		n, err := strconv.ParseUint(p.ID, 10, 64)
		if err != nil {
			return posts[len(posts)-1].ID
		}
		if i == 0 || n > max {
			max = n
		}
	}
	return strconv.FormatUint(max, 10)
}
