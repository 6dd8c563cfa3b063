package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

// Notifier delivers a pending post to the downstream chat channel.
type Notifier interface {
	Deliver(ctx context.Context, item model.PendingPost) error
}

// Config holds the webhook endpoint settings.
type Config struct {
	URL             string
	Username        string
	PostURLTemplate string
	Timeout         time.Duration
	MaxRetries      int
	ExpectStatus    int
}

type httpNotifier struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

var _ Notifier = (*httpNotifier)(nil)

// NewWebhook builds a Notifier posting formatted messages to a chat webhook.
func NewWebhook(cfg Config, log *zap.Logger) Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ExpectStatus == 0 {
		cfg.ExpectStatus = http.StatusNoContent
	}
	return &httpNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type webhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func (n *httpNotifier) Deliver(ctx context.Context, item model.PendingPost) error {
	body, err := json.Marshal(webhookPayload{
		Content:  FormatMessage(item, n.cfg.PostURLTemplate),
		Username: n.cfg.Username,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		lastErr = n.post(ctx, body)
		if lastErr == nil {
			n.log.Info("delivered post",
				zap.String("post_id", item.Post.ID),
				zap.String("account", item.Post.Account),
				zap.Int("attempt", attempt))
			return nil
		}
		n.log.Warn("webhook delivery failed",
			zap.String("post_id", item.Post.ID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	return fmt.Errorf("deliver post %s: %w", item.Post.ID, lastErr)
}

func (n *httpNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != n.cfg.ExpectStatus {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
