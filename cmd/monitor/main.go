package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postwatch/postwatch/internal/api"
	"github.com/postwatch/postwatch/internal/app"
	"github.com/postwatch/postwatch/internal/config"
	"github.com/postwatch/postwatch/internal/logx"
	"github.com/postwatch/postwatch/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	check := flag.Bool("check", false, "verify store and account source connectivity, then exit")
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

	if err := app.Migrate(cfg.Store.URL, logger); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build pipeline", zap.Error(err))
	}
	defer a.Close()

	if *check {
		os.Exit(runCheck(ctx, a, logger))
	}

	runner := service.NewRunner(service.Config{
		PollInterval:    cfg.Poller.Interval,
		DeliverInterval: cfg.Delivery.Interval,
	}, a.Driver, a.Sweep, logger)
	watcher := service.NewWatcher(a.Store, runner, a.Driver, a.Sweep, logger)

	srv := api.NewServer(api.ServerCfg{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, watcher, logger)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	time.Sleep(100 * time.Millisecond)
	_ = logger.Sync()
}

// runCheck pings the store and lists the accounts, reporting what works.
func runCheck(ctx context.Context, a *app.App, logger *zap.Logger) int {
	code := 0
	if err := a.Store.Ping(ctx); err != nil {
		logger.Error("check: store unreachable", zap.Error(err))
		code = 1
	} else {
		logger.Info("check: store ok")
	}
	handles, err := a.Accounts.List(ctx)
	if err != nil {
		logger.Error("check: account source failed", zap.Error(err))
		code = 1
	} else {
		logger.Info("check: account source ok", zap.Int("accounts", len(handles)))
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(ctx); err != nil {
			logger.Error("check: redis unreachable", zap.Error(err))
			code = 1
		} else {
			logger.Info("check: redis ok")
		}
	}
	return code
}
