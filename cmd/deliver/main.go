package main

import (
	"context"
	"errors"
	"flag"
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
	exitOK         = 0
	exitFailure    = 1
	exitQueueEmpty = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	all := flag.Bool("all", false, "drain the whole queue instead of delivering one post")
	flag.Parse()

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

	if *all {
		n, err := a.Sweep.DrainAll(ctx)
		if err != nil {
			logger.Error("drain stopped early", zap.Int("delivered", n), zap.Error(err))
			return exitFailure
		}
		if n == 0 {
			return exitQueueEmpty
		}
		logger.Info("queue drained", zap.Int("delivered", n))
		return exitOK
	}

	if _, err := a.Sweep.DeliverOne(ctx); err != nil {
		if errors.Is(err, pipeline.ErrQueueEmpty) {
			return exitQueueEmpty
		}
		logger.Error("delivery failed", zap.Error(err))
		return exitFailure
	}
	return exitOK
}
