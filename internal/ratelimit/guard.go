package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCooldown is used when a rate-limited response carries no usable
	// reset metadata.
	DefaultCooldown = 15 * time.Minute
	// PassWait is how long the outer loop waits before retrying a pass that
	// was interrupted by a rate limit.
	PassWait = 20 * time.Minute
)

// Guard tracks a single global cooldown window for one upstream source. A 429
// from any account blocks fetches for every account until the window passes.
// The window lives in memory only; a restart clears it.
type Guard struct {
	mtx      sync.Mutex
	until    time.Time
	fallback time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// New creates a guard. fallback is the cooldown applied when response
// metadata gives no reset time; zero means DefaultCooldown.
func New(fallback time.Duration, log *zap.Logger) *Guard {
	if fallback <= 0 {
		fallback = DefaultCooldown
	}
	return &Guard{fallback: fallback, now: time.Now, log: log}
}

// CoolingDown reports whether outbound calls are currently suppressed.
func (g *Guard) CoolingDown() bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.now().Before(g.until)
}

// Remaining returns how long the current cooldown has left, or zero.
func (g *Guard) Remaining() time.Duration {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if d := g.until.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

// CoolDownFor suppresses outbound calls for the given duration. A
// non-positive duration falls back to the configured default.
func (g *Guard) CoolDownFor(d time.Duration) {
	if d <= 0 {
		d = g.fallback
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.until = g.now().Add(d)
	g.log.Warn("rate limit cooldown set", zap.Duration("duration", d))
}

// Fallback returns the configured fallback cooldown.
func (g *Guard) Fallback() time.Duration { return g.fallback }

// RetryAfterFromHeaders derives a cooldown from rate-limit response headers:
// an x-rate-limit-reset epoch if present, else a Retry-After second count.
// Returns zero when neither is usable; callers treat zero as "use fallback".
func RetryAfterFromHeaders(h http.Header, now time.Time) time.Duration {
	if reset := h.Get("x-rate-limit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
