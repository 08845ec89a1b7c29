// Package ratelimit provides admission control per key (IP, account, or
// route class). Three implementations share one contract: an in-memory
// timestamp-list limiter for low-traffic routes, a bucketed sliding-window
// limiter for high-throughput routes, and a Redis-backed limiter for
// multi-replica deployments.
//
// Exceeding a limit is a normal denied Status, never an error: callers
// translate denial into a 429 response with a Retry-After hint.
package ratelimit

import (
	"context"
	"time"
)

// Status describes the outcome of a rate-limit check for a key.
type Status struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was allowed or the window already elapsed.
func (s Status) RetryAfter(now time.Time) time.Duration {
	if s.Allowed {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter is the shared admission-control contract.
type Limiter interface {
	// Allow records a request for key and reports whether it is admitted.
	Allow(ctx context.Context, key string) bool

	// Status reports the current state for key without recording a request.
	Status(ctx context.Context, key string) Status
}

// LoginKey builds the composite key used for per-account login throttling.
func LoginKey(accountID, ip string) string {
	return accountID + ":" + ip
}
