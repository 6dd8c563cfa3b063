package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postwatch/postwatch/internal/source"

	"go.uber.org/zap"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <item>
      <title>Third</title>
      <guid>urn:item:3</guid>
      <description>newest</description>
      <pubDate>Mon, 02 Jun 2025 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second</title>
      <guid>urn:item:2</guid>
      <description>middle</description>
      <pubDate>Sun, 01 Jun 2025 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>First</title>
      <guid>urn:item:1</guid>
      <description>oldest</description>
      <pubDate>Sat, 31 May 2025 12:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchSince_All(t *testing.T) {
	server := newFeedServer(t)
	s := New(Config{Timeout: 2 * time.Second}, zap.NewNop())

	posts, err := s.FetchSince(context.Background(), server.URL, nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	// Oldest first.
	if posts[0].ID != "urn:item:1" || posts[2].ID != "urn:item:3" {
		t.Fatalf("unexpected order: %v %v", posts[0].ID, posts[2].ID)
	}
	if posts[0].Account != server.URL {
		t.Fatalf("account should be the feed url, got %q", posts[0].Account)
	}
}

func TestFetchSince_CutsAtCursor(t *testing.T) {
	server := newFeedServer(t)
	s := New(Config{Timeout: 2 * time.Second}, zap.NewNop())

	since := "urn:item:2"
	posts, err := s.FetchSince(context.Background(), server.URL, &since, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "urn:item:3" {
		t.Fatalf("expected only the item newer than the cursor, got %#v", posts)
	}
}

func TestFetchSince_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	s := New(Config{Timeout: 2 * time.Second}, zap.NewNop())
	_, err := s.FetchSince(context.Background(), server.URL, nil, 10)
	if !errors.Is(err, source.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
