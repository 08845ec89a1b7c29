package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSubWindows is the number of buckets a sliding window is divided
// into. More buckets smooth the boundary effect at the cost of memory.
const DefaultSubWindows = 10

// SlidingLimiter divides the window into fixed sub-window buckets and sums
// counts across the buckets the window currently covers. Compared to the
// timestamp-list approach it uses constant memory per key and behaves more
// smoothly at window boundaries, so it backs the high-throughput "api" and
// "global" limiter instances.
type SlidingLimiter struct {
	mu      sync.RWMutex
	buckets map[string]map[int64]int
	limit   int
	window  time.Duration
	subSize time.Duration
	subs    int64

	stop chan struct{}
	once sync.Once
}

// NewSlidingLimiter creates a sliding-window limiter with DefaultSubWindows
// buckets and starts its sweep goroutine. Call Close to stop the sweep.
func NewSlidingLimiter(limit int, window time.Duration) *SlidingLimiter {
	return NewSlidingLimiterWithSubWindows(limit, window, DefaultSubWindows)
}

// NewSlidingLimiterWithSubWindows creates a sliding-window limiter with an
// explicit bucket count.
func NewSlidingLimiterWithSubWindows(limit int, window time.Duration, subWindows int) *SlidingLimiter {
	if subWindows < 1 {
		subWindows = 1
	}

	rl := &SlidingLimiter{
		buckets: make(map[string]map[int64]int),
		limit:   limit,
		window:  window,
		subSize: window / time.Duration(subWindows),
		subs:    int64(subWindows),
		stop:    make(chan struct{}),
	}

	go rl.sweep()

	return rl
}

// Allow records a request for key if the limit permits it
func (rl *SlidingLimiter) Allow(ctx context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	current := rl.bucketIndex(now)

	counts := rl.buckets[key]
	if counts == nil {
		counts = make(map[int64]int)
		rl.buckets[key] = counts
	}

	total := 0
	for idx, count := range counts {
		if idx <= current-rl.subs {
			delete(counts, idx)
			continue
		}
		total += count
	}

	if total >= rl.limit {
		return false
	}

	counts[current]++
	return true
}

// Status reports the current state for key without recording a request
func (rl *SlidingLimiter) Status(ctx context.Context, key string) Status {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()
	current := rl.bucketIndex(now)

	total := 0
	oldest := int64(-1)
	for idx, count := range rl.buckets[key] {
		if idx <= current-rl.subs || count == 0 {
			continue
		}
		total += count
		if oldest == -1 || idx < oldest {
			oldest = idx
		}
	}

	remaining := rl.limit - total
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if oldest >= 0 {
		// The oldest covered bucket rotates out of the window when its
		// start time is a full window in the past.
		resetAt = time.Unix(0, oldest*int64(rl.subSize)).Add(rl.window)
	}

	return Status{
		Allowed:   total < rl.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Close stops the background sweep
func (rl *SlidingLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *SlidingLimiter) bucketIndex(t time.Time) int64 {
	return t.UnixNano() / int64(rl.subSize)
}

// sweep periodically drops stale buckets and idle keys
func (rl *SlidingLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			current := rl.bucketIndex(time.Now())
			for key, counts := range rl.buckets {
				for idx := range counts {
					if idx <= current-rl.subs {
						delete(counts, idx)
					}
				}
				if len(counts) == 0 {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
