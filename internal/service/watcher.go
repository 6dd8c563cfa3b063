package service

import (
	"context"
	"errors"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/pipeline"
	"github.com/postwatch/postwatch/internal/store"

	"go.uber.org/zap"
)

// Watcher is the application facade the admin API talks to. It exposes the
// persisted state and lets operators trigger or pause the pipeline.
type Watcher struct {
	store  store.Store
	runner *Runner
	driver Poller
	sweep  Deliverer
	log    *zap.Logger
}

// NewWatcher creates the application facade.
func NewWatcher(st store.Store, runner *Runner, driver Poller, sweep Deliverer, log *zap.Logger) *Watcher {
	return &Watcher{store: st, runner: runner, driver: driver, sweep: sweep, log: log}
}

// Start starts the background loops.
func (w *Watcher) Start(ctx context.Context) {
	if w.runner != nil {
		w.runner.Start(ctx)
	}
}

// Stop stops the background loops.
func (w *Watcher) Stop() {
	if w.runner != nil {
		w.runner.Stop(errors.New("service stopped"))
	}
}

// Pending lists queued posts awaiting delivery, oldest first.
func (w *Watcher) Pending(ctx context.Context, limit int) ([]model.PendingPost, error) {
	w.log.Info("Pending", zap.Int("limit", limit))
	items, err := w.store.ListPending(ctx, limit)
	if err != nil {
		w.log.Error("Pending: db error", zap.Error(err))
	}
	return items, err
}

// Errors lists the most recent operational errors.
func (w *Watcher) Errors(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	w.log.Info("Errors", zap.Int("limit", limit))
	recs, err := w.store.RecentErrors(ctx, limit)
	if err != nil {
		w.log.Error("Errors: db error", zap.Error(err))
	}
	return recs, err
}

// Accounts lists the tracked account cursors.
func (w *Watcher) Accounts(ctx context.Context) ([]model.AccountCursor, error) {
	w.log.Info("Accounts")
	cursors, err := w.store.ListAccounts(ctx)
	if err != nil {
		w.log.Error("Accounts: db error", zap.Error(err))
	}
	return cursors, err
}

// TriggerPoll runs one polling pass immediately.
func (w *Watcher) TriggerPoll(ctx context.Context) (pipeline.Summary, error) {
	w.log.Info("TriggerPoll")
	return w.driver.RunPass(ctx)
}

// TriggerDeliver drains the pending queue immediately.
func (w *Watcher) TriggerDeliver(ctx context.Context) (int, error) {
	w.log.Info("TriggerDeliver")
	return w.sweep.DrainAll(ctx)
}

// Pause suspends the background loops.
func (w *Watcher) Pause() {
	w.log.Info("Pause")
	if w.runner != nil {
		w.runner.Pause()
	}
}

// Resume re-enables the background loops.
func (w *Watcher) Resume() {
	w.log.Info("Resume")
	if w.runner != nil {
		w.runner.Resume()
	}
}

// Paused reports whether the loops are suspended.
func (w *Watcher) Paused() bool {
	return w.runner != nil && w.runner.Paused()
}

// Healthy pings the store.
func (w *Watcher) Healthy(ctx context.Context) error {
	return w.store.Ping(ctx)
}
