package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	sl "gather_auth/internal/lib/logger"
)

// Counter is the window-counter backend, normally redis.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// LimitExceededError is returned by callers that treat a denial as an error.
type LimitExceededError struct {
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Limiter is a fixed-window counter over a shared store. When the store is
// unreachable it fails open: the request is allowed and the failure is only
// logged. Availability over strictness for the flows this guards.
type Limiter struct {
	log     *slog.Logger
	counter Counter
	prefix  string
}

func New(log *slog.Logger, counter Counter, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}

	return &Limiter{
		log:     log,
		counter: counter,
		prefix:  prefix,
	}
}

// Allow counts one request against key and compares it with limit inside the
// window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	const op = "ratelimit.Allow"

	storeKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, ttl, err := l.counter.IncrWindow(ctx, storeKey, window)
	if err != nil {
		l.log.Warn("rate limit store unreachable, failing open",
			slog.String("op", op),
			slog.String("key", key),
			sl.Err(err),
		)

		return Decision{Allowed: true, Remaining: limit}
	}

	if ttl <= 0 {
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:    count <= int64(limit),
		Remaining:  remaining,
		RetryAfter: ttl,
	}
}

// RetryAfterSeconds rounds a retry delay up to whole seconds for the
// Retry-After header and response body.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}

	return secs
}
