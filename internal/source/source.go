package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postwatch/postwatch/internal/model"
)

// ErrRateLimited marks a fetch rejected by the upstream quota. Match with
// errors.Is; the concrete *RateLimitedError carries the suggested wait.
var ErrRateLimited = errors.New("content source rate limited")

// RateLimitedError is returned by a ContentSource on a 429-class response.
type RateLimitedError struct {
	// RetryAfter is the wait derived from response metadata; zero when the
	// response carried none.
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// Fetch limits accepted by content sources. Requests outside the range are
// clamped, not rejected.
const (
	MinFetchLimit = 5
	MaxFetchLimit = 100
)

// ClampLimit forces a fetch limit into [MinFetchLimit, MaxFetchLimit].
func ClampLimit(n int) int {
	if n < MinFetchLimit {
		return MinFetchLimit
	}
	if n > MaxFetchLimit {
		return MaxFetchLimit
	}
	return n
}

// AccountSource lists the account handles to monitor, in a stable order.
type AccountSource interface {
	List(ctx context.Context) ([]string, error)
}

// ContentSource fetches posts for one account newer than the given cursor,
// oldest first. since is nil on the first fetch for an account.
type ContentSource interface {
	FetchSince(ctx context.Context, account string, since *string, limit int) ([]model.Post, error)
}
