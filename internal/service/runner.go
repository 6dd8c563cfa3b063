package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postwatch/postwatch/internal/pipeline"
	"github.com/postwatch/postwatch/internal/ratelimit"

	"go.uber.org/zap"
)

// Poller runs one polling pass
type Poller interface {
	RunPass(ctx context.Context) (pipeline.Summary, error)
}

// Deliverer drains the pending queue
type Deliverer interface {
	DrainAll(ctx context.Context) (int, error)
}

// Config is the configuration for the runner
type Config struct {
	PollInterval    time.Duration
	DeliverInterval time.Duration
}

// Runner drives the periodic poll and delivery ticks
type Runner struct {
	cfg    Config
	driver Poller
	sweep  Deliverer
	log    *zap.Logger

	paused    atomic.Bool
	mtx       sync.Mutex
	ctxCancel context.CancelCauseFunc
	running   bool
}

// NewRunner creates a new runner. A missing poll interval falls back to the
// rate-limit pass wait so a misconfigured daemon never hot-loops.
func NewRunner(cfg Config, driver Poller, sweep Deliverer, log *zap.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = ratelimit.PassWait
	}
	if cfg.DeliverInterval <= 0 {
		cfg.DeliverInterval = time.Hour
	}
	return &Runner{cfg: cfg, driver: driver, sweep: sweep, log: log}
}

// Start starts the poll and delivery loops
func (r *Runner) Start(ctx context.Context) {
	r.mtx.Lock()
	if r.running {
		r.mtx.Unlock()
		r.log.Info("runner already running")
		return
	}

	var rCtx context.Context
	rCtx, r.ctxCancel = context.WithCancelCause(ctx)
	r.running = true
	r.mtx.Unlock()

	r.log.Info("runner started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Duration("deliver_interval", r.cfg.DeliverInterval))

	go func() {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rCtx.Done():
				r.log.Info("poll loop done", zap.Error(context.Cause(rCtx)))
				return
			case <-ticker.C:
				r.pollTick(rCtx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(r.cfg.DeliverInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rCtx.Done():
				r.log.Info("deliver loop done", zap.Error(context.Cause(rCtx)))
				return
			case <-ticker.C:
				r.deliverTick(rCtx)
			}
		}
	}()
}

// Stop stops the runner
func (r *Runner) Stop(reason error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if !r.running {
		r.log.Info("runner not running")
		return
	}
	r.running = false
	r.ctxCancel(reason)
}

// Pause suspends ticks without stopping the loops
func (r *Runner) Pause() { r.paused.Store(true) }

// Resume re-enables ticks
func (r *Runner) Resume() { r.paused.Store(false) }

// Paused reports whether ticks are suspended
func (r *Runner) Paused() bool { return r.paused.Load() }

func (r *Runner) pollTick(ctx context.Context) {
	if r.paused.Load() {
		r.log.Debug("poll tick skipped, paused")
		return
	}
	sum, err := r.driver.RunPass(ctx)
	switch {
	case errors.Is(err, pipeline.ErrCoolingDown):
		r.log.Info("poll tick skipped, cooling down")
	case errors.Is(err, pipeline.ErrNoAccounts):
		r.log.Warn("poll tick skipped, no accounts configured")
	case err != nil:
		r.log.Error("poll tick failed", zap.Error(err))
	default:
		r.log.Info("poll tick done",
			zap.Int("fetched", sum.Fetched),
			zap.Int("enqueued", sum.Enqueued),
			zap.Bool("rate_limited", sum.RateLimited))
	}
}

func (r *Runner) deliverTick(ctx context.Context) {
	if r.paused.Load() {
		r.log.Debug("deliver tick skipped, paused")
		return
	}
	n, err := r.sweep.DrainAll(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("deliver tick stopped early", zap.Int("delivered", n), zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("deliver tick done", zap.Int("delivered", n))
	}
}
