package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/postwatch/postwatch/internal/cache"
	"github.com/postwatch/postwatch/internal/classify"
	"github.com/postwatch/postwatch/internal/config"
	"github.com/postwatch/postwatch/internal/notify"
	"github.com/postwatch/postwatch/internal/pipeline"
	"github.com/postwatch/postwatch/internal/ratelimit"
	"github.com/postwatch/postwatch/internal/source"
	"github.com/postwatch/postwatch/internal/source/rss"
	"github.com/postwatch/postwatch/internal/store"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	// store backends register themselves by URL scheme
	_ "github.com/postwatch/postwatch/internal/store/postgres"
	_ "github.com/postwatch/postwatch/internal/store/sqlite"
)

// App holds the wired pipeline components shared by the commands.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	Store    store.Store
	Cache    *cache.Redis
	Accounts source.AccountSource
	Content  source.ContentSource
	Guard    *ratelimit.Guard
	Driver   *pipeline.Driver
	Sweep    *pipeline.Sweep
}

// Build wires the full pipeline from config. The sqlite backend creates its
// schema on open; postgres expects Migrate to have run first.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.Store.URL, cfg.Store.MaxOpenConns, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{Cfg: cfg, Log: log, Store: st}

	if cfg.Redis.Enabled {
		a.Cache = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.DB)
	}

	switch cfg.Accounts.Kind {
	case "csv":
		a.Accounts = source.NewCSVAccounts(source.CSVConfig{
			URL:     cfg.Accounts.URL,
			Timeout: cfg.Accounts.Timeout,
		}, log)
	default:
		a.Accounts = source.NewFileAccounts(cfg.Accounts.Path, log)
	}

	switch cfg.Source.Kind {
	case "rss":
		a.Content = rss.New(rss.Config{Timeout: cfg.Source.Timeout}, log)
	default:
		a.Content = source.NewHTTP(source.HTTPConfig{
			BaseURL:     cfg.Source.BaseURL,
			BearerToken: cfg.Source.BearerToken,
			Timeout:     cfg.Source.Timeout,
		}, log)
	}

	prompt, err := classify.LoadPrompt(cfg.Classifier.PromptFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load classifier prompt: %w", err)
	}
	classifier := classify.NewChat(classify.Config{
		URL:     cfg.Classifier.URL,
		APIKey:  cfg.Classifier.APIKey,
		Model:   cfg.Classifier.Model,
		Timeout: cfg.Classifier.Timeout,
		Prompt:  prompt,
	}, log)
	relay := classify.NewRelay(classifier, st, log)

	a.Guard = ratelimit.New(cfg.Poller.CooldownFallback, log)

	a.Driver = pipeline.New(pipeline.Config{
		MaxItemsPerAccount: cfg.Poller.MaxItemsPerAccount,
		Cycle:              cfg.Poller.Cycle,
	}, a.Accounts, a.Content, relay, a.Guard, st, log)

	notifier := notify.NewWebhook(notify.Config{
		URL:             cfg.Webhook.URL,
		Username:        cfg.Webhook.Username,
		PostURLTemplate: cfg.Webhook.PostURLTemplate,
		Timeout:         cfg.Webhook.Timeout,
		MaxRetries:      cfg.Webhook.MaxRetries,
		ExpectStatus:    cfg.Webhook.ExpectStatus,
	}, log)

	var delivered pipeline.DeliveredCache
	if a.Cache != nil {
		delivered = a.Cache
	}
	a.Sweep = pipeline.NewSweep(st, notifier, delivered, cfg.Redis.TTL, log)

	return a, nil
}

// Close releases the store and cache connections.
func (a *App) Close() {
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// Migrate applies pending schema migrations for postgres stores. A no-op for
// other backends.
func Migrate(storeURL string, log *zap.Logger) error {
	if !strings.HasPrefix(storeURL, "postgres://") && !strings.HasPrefix(storeURL, "postgresql://") {
		return nil
	}
	src := os.Getenv("APP_MIGRATIONS_PATH")
	if src == "" {
		src = "file://internal/store/migrations"
	}
	m, err := migrate.New(src, storeURL)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied", zap.String("source", src))
	return nil
}
