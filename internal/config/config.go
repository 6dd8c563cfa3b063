package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type (
	AppCfg struct {
		Name string `mapstructure:"name"`
		Env  string `mapstructure:"env"`
	}
	ServerCfg struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	}
	StoreCfg struct {
		// URL scheme selects the backend: postgres:// or sqlite://.
		URL          string `mapstructure:"url"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	}
	RedisCfg struct {
		Enabled bool          `mapstructure:"enabled"`
		Addr    string        `mapstructure:"addr"`
		DB      int           `mapstructure:"db"`
		TTL     time.Duration `mapstructure:"ttl"`
	}
	AccountsCfg struct {
		// Kind is "file" or "csv".
		Kind    string        `mapstructure:"kind"`
		Path    string        `mapstructure:"path"`
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	}
	SourceCfg struct {
		// Kind is "http" or "rss".
		Kind        string        `mapstructure:"kind"`
		BaseURL     string        `mapstructure:"base_url"`
		BearerToken string        `mapstructure:"bearer_token"`
		Timeout     time.Duration `mapstructure:"timeout"`
	}
	PollerCfg struct {
		Interval           time.Duration `mapstructure:"interval"`
		MaxItemsPerAccount int           `mapstructure:"max_items_per_account"`
		// Cycle resets the resume index to -1 after a full pass so the next
		// pass rescans from the first account. Disabling it keeps the index
		// at the last completed position.
		Cycle            bool          `mapstructure:"cycle"`
		CooldownFallback time.Duration `mapstructure:"cooldown_fallback"`
	}
	ClassifierCfg struct {
		URL        string        `mapstructure:"url"`
		APIKey     string        `mapstructure:"api_key"`
		Model      string        `mapstructure:"model"`
		PromptFile string        `mapstructure:"prompt_file"`
		Timeout    time.Duration `mapstructure:"timeout"`
	}
	WebhookCfg struct {
		URL      string `mapstructure:"url"`
		Username string `mapstructure:"username"`
		// PostURLTemplate takes {account} and {id} placeholders.
		PostURLTemplate string        `mapstructure:"post_url_template"`
		Timeout         time.Duration `mapstructure:"timeout"`
		MaxRetries      int           `mapstructure:"max_retries"`
		ExpectStatus    int           `mapstructure:"expect_status"`
	}
	DeliveryCfg struct {
		Interval time.Duration `mapstructure:"interval"`
	}
	Config struct {
		App        AppCfg        `mapstructure:"app"`
		Server     ServerCfg     `mapstructure:"server"`
		Store      StoreCfg      `mapstructure:"store"`
		Redis      RedisCfg      `mapstructure:"redis"`
		Accounts   AccountsCfg   `mapstructure:"accounts"`
		Source     SourceCfg     `mapstructure:"source"`
		Poller     PollerCfg     `mapstructure:"poller"`
		Classifier ClassifierCfg `mapstructure:"classifier"`
		Webhook    WebhookCfg    `mapstructure:"webhook"`
		Delivery   DeliveryCfg   `mapstructure:"delivery"`
	}
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if p := os.Getenv("APP_CONFIG_PATH"); p != "" {
		v.SetConfigFile(p)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("app.name", "postwatch")
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("store.url", "sqlite://data/postwatch.db")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("accounts.kind", "file")
	v.SetDefault("accounts.path", "accounts.txt")
	v.SetDefault("accounts.timeout", "10s")
	v.SetDefault("source.kind", "http")
	v.SetDefault("source.timeout", "15s")
	v.SetDefault("poller.interval", "20m")
	v.SetDefault("poller.max_items_per_account", 10)
	v.SetDefault("poller.cycle", true)
	v.SetDefault("poller.cooldown_fallback", "15m")
	v.SetDefault("classifier.url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.prompt_file", "assets/deciding_prompt.txt")
	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("webhook.username", "postwatch")
	v.SetDefault("webhook.post_url_template", "https://x.com/{account}/status/{id}")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.expect_status", 204)
	v.SetDefault("delivery.interval", "1h")

	if err := v.ReadInConfig(); err != nil {
		// continue with env/defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values a run cannot proceed without. Called at startup,
// before any state is touched.
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	switch c.Accounts.Kind {
	case "file":
		if c.Accounts.Path == "" {
			return fmt.Errorf("accounts.path is required for accounts.kind=file")
		}
	case "csv":
		if c.Accounts.URL == "" {
			return fmt.Errorf("accounts.url is required for accounts.kind=csv")
		}
	default:
		return fmt.Errorf("unknown accounts.kind %q", c.Accounts.Kind)
	}
	switch c.Source.Kind {
	case "http":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required for source.kind=http")
		}
	case "rss":
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	if c.Classifier.APIKey == "" {
		return fmt.Errorf("classifier.api_key is required")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required")
	}
	return nil
}
