package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/planwise/backend/internal/store"
)

// Lockout policy: five failed logins for the same account:IP key lock the
// key out for the window. A successful login, or the window elapsing,
// resets the counter.
const (
	MaxLoginAttempts = 5
	LockoutDuration  = 15 * time.Minute
)

// lockoutEntry is the per-key failure counter.
type lockoutEntry struct {
	Count        int        `json:"count"`
	LastAttempt  time.Time  `json:"lastAttempt"`
	LockoutUntil *time.Time `json:"lockoutUntil,omitempty"`
}

// LockoutStatus describes the current lockout state for a key.
type LockoutStatus struct {
	Locked            bool
	LockedUntil       time.Time
	AttemptsRemaining int
}

// LockoutTracker counts failed login attempts per account:IP key in the
// injected Store.
type LockoutTracker struct {
	store  store.Store
	logger *slog.Logger
}

// NewLockoutTracker creates a LockoutTracker
func NewLockoutTracker(s store.Store, logger *slog.Logger) *LockoutTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockoutTracker{
		store:  s,
		logger: logger,
	}
}

func lockoutKey(key string) string {
	return "lockout:" + key
}

// load returns the entry for key, discarding it if its lockout window has
// already elapsed.
func (t *LockoutTracker) load(ctx context.Context, key string) (lockoutEntry, error) {
	data, found, err := t.store.Get(ctx, lockoutKey(key))
	if err != nil || !found {
		return lockoutEntry{}, err
	}

	var entry lockoutEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.logger.Warn("dropping undecodable lockout entry", "key", key, "error", err)
		_ = t.store.Delete(ctx, lockoutKey(key))
		return lockoutEntry{}, nil
	}

	if entry.LockoutUntil != nil && time.Now().After(*entry.LockoutUntil) {
		_ = t.store.Delete(ctx, lockoutKey(key))
		return lockoutEntry{}, nil
	}

	return entry, nil
}

func (t *LockoutTracker) save(ctx context.Context, key string, entry lockoutEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, lockoutKey(key), data, LockoutDuration)
}

// Status reports the current lockout state for key without mutating it.
// A store failure reports locked: lockout enforcement must not fail open.
func (t *LockoutTracker) Status(ctx context.Context, key string) LockoutStatus {
	entry, err := t.load(ctx, key)
	if err != nil {
		t.logger.Error("lockout lookup failed, treating key as locked", "key", key, "error", err)
		return LockoutStatus{Locked: true, LockedUntil: time.Now().Add(LockoutDuration)}
	}

	remaining := MaxLoginAttempts - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	status := LockoutStatus{AttemptsRemaining: remaining}
	if entry.LockoutUntil != nil && time.Now().Before(*entry.LockoutUntil) {
		status.Locked = true
		status.LockedUntil = *entry.LockoutUntil
	}
	return status
}

// RecordFailure increments the counter for key and returns the resulting
// state. The fifth failure sets LockoutUntil.
func (t *LockoutTracker) RecordFailure(ctx context.Context, key string) LockoutStatus {
	entry, err := t.load(ctx, key)
	if err != nil {
		t.logger.Error("lockout load failed while recording failure", "key", key, "error", err)
		return LockoutStatus{Locked: true, LockedUntil: time.Now().Add(LockoutDuration)}
	}

	entry.Count++
	entry.LastAttempt = time.Now()
	if entry.Count >= MaxLoginAttempts && entry.LockoutUntil == nil {
		until := entry.LastAttempt.Add(LockoutDuration)
		entry.LockoutUntil = &until
	}

	if err := t.save(ctx, key, entry); err != nil {
		t.logger.Error("lockout save failed", "key", key, "error", err)
	}

	remaining := MaxLoginAttempts - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	status := LockoutStatus{AttemptsRemaining: remaining}
	if entry.LockoutUntil != nil {
		status.Locked = true
		status.LockedUntil = *entry.LockoutUntil
	}
	return status
}

// Reset clears the counter for key after a successful login
func (t *LockoutTracker) Reset(ctx context.Context, key string) {
	if err := t.store.Delete(ctx, lockoutKey(key)); err != nil {
		t.logger.Error("lockout reset failed", "key", key, "error", err)
	}
}
