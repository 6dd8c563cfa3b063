package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestClampLimit(t *testing.T) {
	cases := map[int]int{
		2:   5,
		5:   5,
		10:  10,
		100: 100,
		500: 100,
		-1:  5,
	}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func newHTTPSource(t *testing.T, handler http.HandlerFunc) ContentSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTP(HTTPConfig{
		BaseURL:     server.URL,
		BearerToken: "token",
		Timeout:     2 * time.Second,
	}, zap.NewNop())
}

func TestFetchSince_Success(t *testing.T) {
	since := "90"
	s := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/alpha/posts" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatal("missing bearer token")
		}
		if got := r.URL.Query().Get("since_id"); got != "90" {
			t.Fatalf("since_id = %q, want 90", got)
		}
		// A requested limit of 2 must arrive clamped to the minimum.
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("limit = %q, want 5", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"posts": []map[string]any{
				{"id": "100", "text": "first", "created_at": time.Now().UTC()},
				{"id": "101", "text": "second", "created_at": time.Now().UTC()},
			},
		})
	})
	posts, err := s.FetchSince(context.Background(), "alpha", &since, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "100" || posts[0].Account != "alpha" {
		t.Fatalf("unexpected posts: %#v", posts)
	}
}

func TestFetchSince_LimitClampedHigh(t *testing.T) {
	s := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Fatalf("limit = %q, want 100", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"posts": []any{}})
	})
	if _, err := s.FetchSince(context.Background(), "alpha", nil, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFetchSince_RateLimitedWithHeaders(t *testing.T) {
	reset := time.Now().Add(9 * time.Minute)
	s := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset.Unix(), 10))
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := s.FetchSince(context.Background(), "alpha", nil, 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %T", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > 9*time.Minute {
		t.Fatalf("unexpected retry after: %v", rl.RetryAfter)
	}
}

func TestFetchSince_RateLimitedWithoutHeaders(t *testing.T) {
	s := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := s.FetchSince(context.Background(), "alpha", nil, 10)
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %v", err)
	}
	if rl.RetryAfter != 0 {
		t.Fatalf("expected zero retry-after without headers, got %v", rl.RetryAfter)
	}
}

func TestFetchSince_ServerError(t *testing.T) {
	s := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := s.FetchSince(context.Background(), "alpha", nil, 10)
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected plain error, got %v", err)
	}
}
