package ratelimit

import "time"

// Standard limiter thresholds. Burst-sensitive auth routes are throttled far
// tighter than general API traffic, and the global ceiling sits above every
// per-route ceiling.
const (
	LoginLimit  = 5
	LoginWindow = 5 * time.Minute

	RegistrationLimit  = 3
	RegistrationWindow = time.Hour

	PasswordResetLimit  = 3
	PasswordResetWindow = time.Hour

	APILimit  = 100
	APIWindow = time.Minute

	GlobalLimit  = 1000
	GlobalWindow = time.Hour
)

// Set bundles the standard limiter instances used by the HTTP layer.
type Set struct {
	Login         Limiter
	Registration  Limiter
	PasswordReset Limiter
	API           Limiter
	Global        Limiter
}

// NewSet creates the standard in-memory limiter set: timestamp-list
// limiters for the low-volume auth routes, sliding-window limiters for the
// api and global instances.
func NewSet() *Set {
	return &Set{
		Login:         NewFixedLimiter(LoginLimit, LoginWindow),
		Registration:  NewFixedLimiter(RegistrationLimit, RegistrationWindow),
		PasswordReset: NewFixedLimiter(PasswordResetLimit, PasswordResetWindow),
		API:           NewSlidingLimiter(APILimit, APIWindow),
		Global:        NewSlidingLimiter(GlobalLimit, GlobalWindow),
	}
}

// Close stops the background sweeps of every in-memory limiter in the set.
func (s *Set) Close() {
	for _, l := range []Limiter{s.Login, s.Registration, s.PasswordReset, s.API, s.Global} {
		switch rl := l.(type) {
		case *FixedLimiter:
			rl.Close()
		case *SlidingLimiter:
			rl.Close()
		}
	}
}
