// Package rss adapts RSS/Atom feeds to the content-source interface. The
// account identifier is the feed URL and the cursor is the GUID of the last
// seen item.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/ratelimit"
	"github.com/postwatch/postwatch/internal/source"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// Config is the configuration for the RSS content source
type Config struct {
	Timeout time.Duration
}

type feedSource struct {
	client *http.Client
	parser *gofeed.Parser
	log    *zap.Logger
}

// New creates a content source over RSS/Atom feeds
func New(cfg Config, log *zap.Logger) source.ContentSource {
	return &feedSource{
		client: &http.Client{Timeout: cfg.Timeout},
		parser: gofeed.NewParser(),
		log:    log,
	}
}

// FetchSince fetches feed items newer than the since GUID, oldest first
func (f *feedSource) FetchSince(ctx context.Context, account string, since *string, limit int) ([]model.Post, error) {
	limit = source.ClampLimit(limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, account, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", account, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := ratelimit.RetryAfterFromHeaders(resp.Header, time.Now())
		f.log.Warn("feed rate limited", zap.String("feed", account), zap.Duration("retry_after", wait))
		return nil, &source.RateLimitedError{RetryAfter: wait}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: unexpected status %d", account, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", account, err)
	}

	// Feeds list newest first; collect up to the since GUID, then reverse so
	// callers see oldest first.
	var newest []model.Post
	for _, it := range feed.Items {
		id := it.GUID
		if id == "" {
			id = it.Link
		}
		if since != nil && id == *since {
			break
		}
		created := time.Time{}
		if it.PublishedParsed != nil {
			created = *it.PublishedParsed
		}
		text := it.Title
		if it.Description != "" {
			text = it.Title + "\n" + it.Description
		}
		newest = append(newest, model.Post{
			ID:        id,
			Text:      text,
			Account:   account,
			CreatedAt: created,
		})
		if len(newest) == limit {
			break
		}
	}

	posts := make([]model.Post, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		posts = append(posts, newest[i])
	}
	f.log.Debug("fetched feed items", zap.String("feed", account), zap.Int("count", len(posts)))
	return posts, nil
}
