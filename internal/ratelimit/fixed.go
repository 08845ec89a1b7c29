package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedLimiter stores raw request timestamps per key and discards entries
// older than the window on each check. O(n) in the window size per call,
// which is fine for the low-volume routes it guards (login, registration,
// password reset). A background sweep bounds memory for idle keys.
type FixedLimiter struct {
	mu       sync.RWMutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	stop chan struct{}
	once sync.Once
}

// NewFixedLimiter creates a fixed-window limiter and starts its sweep
// goroutine. Call Close to stop the sweep.
func NewFixedLimiter(limit int, window time.Duration) *FixedLimiter {
	rl := &FixedLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}

	go rl.sweep()

	return rl
}

// Allow records a request for key if the limit permits it
func (rl *FixedLimiter) Allow(ctx context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := rl.pruneLocked(key, now)

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Status reports the current state for key without recording a request
func (rl *FixedLimiter) Status(ctx context.Context, key string) Status {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	count := 0
	oldest := time.Time{}
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			count++
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}

	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if !oldest.IsZero() {
		resetAt = oldest.Add(rl.window)
	}

	return Status{
		Allowed:   count < rl.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Reset clears all recorded requests for key
func (rl *FixedLimiter) Reset(key string) {
	rl.mu.Lock()
	delete(rl.requests, key)
	rl.mu.Unlock()
}

// Close stops the background sweep
func (rl *FixedLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// pruneLocked drops timestamps older than the window. Caller holds the lock.
func (rl *FixedLimiter) pruneLocked(key string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}

// sweep periodically removes idle keys
func (rl *FixedLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key := range rl.requests {
				valid := rl.pruneLocked(key, now)
				if len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}
