package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

func pending(id, account, text, summary string) model.PendingPost {
	return model.PendingPost{
		Post:       model.Post{ID: id, Account: account, Text: text, CreatedAt: time.Now()},
		Summary:    summary,
		Decision:   "accept",
		ObservedAt: time.Now(),
	}
}

func TestDeliver_Success(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhook(Config{URL: server.URL, Username: "watcher"}, zap.NewNop())
	err := n.Deliver(context.Background(), pending("42", "acme", "hello world", "a greeting"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Username != "watcher" {
		t.Fatalf("unexpected username %q", got.Username)
	}
	if !strings.Contains(got.Content, "New post from @acme") {
		t.Fatalf("missing header in content: %q", got.Content)
	}
	if !strings.Contains(got.Content, "a greeting") {
		t.Fatalf("missing summary in content: %q", got.Content)
	}
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhook(Config{URL: server.URL, MaxRetries: 3}, zap.NewNop())
	if err := n.Deliver(context.Background(), pending("1", "a", "x", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDeliver_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhook(Config{URL: server.URL, MaxRetries: 2}, zap.NewNop())
	if err := n.Deliver(context.Background(), pending("1", "a", "x", "")); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestFormatMessage_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", 400)
	msg := FormatMessage(pending("7", "acme", long, ""), "")
	if !strings.Contains(msg, strings.Repeat("a", 200)+"...") {
		t.Fatalf("expected truncated text, got %q", msg)
	}
	if strings.Contains(msg, strings.Repeat("a", 201)) {
		t.Fatal("text was not truncated at 200 runes")
	}
}

func TestFormatMessage_PostURL(t *testing.T) {
	msg := FormatMessage(pending("99", "acme", "hi", ""), "https://x.com/{account}/status/{id}")
	if !strings.Contains(msg, "https://x.com/acme/status/99") {
		t.Fatalf("missing post url: %q", msg)
	}
}

func TestFormatMessage_TemplateWithoutPlaceholders(t *testing.T) {
	msg := FormatMessage(pending("99", "acme", "hi", ""), "https://example.com/feed")
	if !strings.Contains(msg, "https://example.com/feed") {
		t.Fatalf("template not passed through: %q", msg)
	}
	if strings.Contains(msg, "%!") {
		t.Fatalf("template must not be treated as a format string: %q", msg)
	}
}
