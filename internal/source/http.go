package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/ratelimit"

	"go.uber.org/zap"
)

// HTTPConfig is the configuration for the HTTP content source
type HTTPConfig struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

// httpSource speaks a since-cursor posts API:
// GET {base}/accounts/{handle}/posts?since_id=...&limit=...
type httpSource struct {
	cfg    HTTPConfig
	client *http.Client
	log    *zap.Logger
}

// NewHTTP creates a content source over the posts API
func NewHTTP(cfg HTTPConfig, log *zap.Logger) ContentSource {
	return &httpSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type postsResponse struct {
	Posts []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"posts"`
}

// FetchSince fetches posts newer than since for one account, oldest first
func (s *httpSource) FetchSince(ctx context.Context, account string, since *string, limit int) ([]model.Post, error) {
	limit = ClampLimit(limit)

	u := fmt.Sprintf("%s/accounts/%s/posts", s.cfg.BaseURL, url.PathEscape(account))
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if since != nil && *since != "" {
		q.Set("since_id", *since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	if s.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch posts for %s: %w", account, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := ratelimit.RetryAfterFromHeaders(resp.Header, time.Now())
		s.log.Warn("content source rate limited",
			zap.String("account", account), zap.Duration("retry_after", wait))
		return nil, &RateLimitedError{RetryAfter: wait}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16384))
		return nil, fmt.Errorf("fetch posts for %s: unexpected status %d: %s", account, resp.StatusCode, body)
	}

	var out postsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode posts response: %w", err)
	}

	posts := make([]model.Post, 0, len(out.Posts))
	for _, p := range out.Posts {
		posts = append(posts, model.Post{
			ID:        p.ID,
			Text:      p.Text,
			Account:   account,
			CreatedAt: p.CreatedAt,
		})
	}
	s.log.Debug("fetched posts", zap.String("account", account), zap.Int("count", len(posts)))
	return posts, nil
}
