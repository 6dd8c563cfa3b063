package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/postwatch/postwatch/internal/app"
	"github.com/postwatch/postwatch/internal/config"
	"github.com/postwatch/postwatch/internal/logx"
	"github.com/postwatch/postwatch/internal/pipeline"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Exit codes for cron wrappers.
const (
	exitOK          = 0
	exitFailure     = 1
	exitNothingToDo = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Errorf("invalid config: %w", err))
	}

	logger := logx.Must(cfg.App.Env)
	defer func() { _ = logger.Sync() }()

	if err := app.Migrate(cfg.Store.URL, logger); err != nil {
		logger.Error("migrations", zap.Error(err))
		return exitFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build pipeline", zap.Error(err))
		return exitFailure
	}
	defer a.Close()

	sum, err := a.Driver.RunPass(ctx)
	switch {
	case errors.Is(err, pipeline.ErrCoolingDown):
		return exitNothingToDo
	case errors.Is(err, pipeline.ErrNoAccounts):
		logger.Warn("no accounts to poll")
		return exitNothingToDo
	case err != nil:
		logger.Error("pass failed", zap.Error(err))
		return exitFailure
	}
	if sum.RateLimited {
		logger.Warn("pass cut short by rate limit", zap.Int("enqueued", sum.Enqueued))
	}
	return exitOK
}
