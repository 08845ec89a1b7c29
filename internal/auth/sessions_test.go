package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/planwise/backend/internal/store"
)

// failingStore returns an error from every operation.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}
func (failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Delete(ctx context.Context, key string) error { return errors.New("store down") }
func (failingStore) Sweep(ctx context.Context) (int, error)       { return 0, errors.New("store down") }

func TestSessionRegistry_RegisterGetTouch(t *testing.T) {
	registry := NewSessionRegistry(store.NewMemoryStore(), discardLogger())
	ctx := context.Background()

	if err := registry.Register(ctx, "sess-1", "demo-user", "device-1"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	session, err := registry.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if session.UserID != "demo-user" || session.DeviceID != "device-1" {
		t.Errorf("unexpected session %+v", session)
	}

	before := session.LastActivity
	time.Sleep(5 * time.Millisecond)
	if err := registry.Touch(ctx, "sess-1"); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	session, err = registry.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get after touch failed: %v", err)
	}
	if !session.LastActivity.After(before) {
		t.Error("touch did not advance last activity")
	}
}

func TestSessionRegistry_StaleSessionEvicted(t *testing.T) {
	st := store.NewMemoryStore()
	registry := NewSessionRegistry(st, discardLogger())
	ctx := context.Background()

	// Plant a record whose last activity predates the inactivity limit.
	stale := Session{
		UserID:       "demo-user",
		CreatedAt:    time.Now().Add(-48 * time.Hour),
		LastActivity: time.Now().Add(-25 * time.Hour),
	}
	data, _ := json.Marshal(stale)
	if err := st.Set(ctx, "session:sess-stale", data, time.Hour); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	if _, err := registry.Get(ctx, "sess-stale"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for stale session, got %v", err)
	}

	// The eviction is durable, not just a filtered read.
	if _, found, _ := st.Get(ctx, "session:sess-stale"); found {
		t.Error("stale session record should have been deleted")
	}
}

func TestSessionRegistry_UnknownSession(t *testing.T) {
	registry := NewSessionRegistry(store.NewMemoryStore(), discardLogger())

	if _, err := registry.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestBlacklist_FailsClosed(t *testing.T) {
	blacklist := NewBlacklist(failingStore{}, discardLogger())

	if !blacklist.Contains(context.Background(), "any-session") {
		t.Fatal("unreachable store must report sessions as revoked")
	}
}

func TestLockoutTracker_FailsClosed(t *testing.T) {
	tracker := NewLockoutTracker(failingStore{}, discardLogger())

	status := tracker.Status(context.Background(), "demo-user:203.0.113.7")
	if !status.Locked {
		t.Fatal("unreachable store must report the key as locked")
	}
}

func TestLockoutTracker_WindowElapses(t *testing.T) {
	st := store.NewMemoryStore()
	tracker := NewLockoutTracker(st, discardLogger())
	ctx := context.Background()
	key := "demo-user:203.0.113.7"

	for i := 0; i < MaxLoginAttempts; i++ {
		tracker.RecordFailure(ctx, key)
	}
	if status := tracker.Status(ctx, key); !status.Locked {
		t.Fatal("expected lockout after max failures")
	}

	// Rewrite the entry as if the lockout window had already passed.
	past := time.Now().Add(-time.Minute)
	entry := lockoutEntry{Count: MaxLoginAttempts, LastAttempt: past.Add(-LockoutDuration), LockoutUntil: &past}
	data, _ := json.Marshal(entry)
	if err := st.Set(ctx, "lockout:"+key, data, time.Hour); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	status := tracker.Status(ctx, key)
	if status.Locked {
		t.Fatal("elapsed lockout must clear")
	}
	if status.AttemptsRemaining != MaxLoginAttempts {
		t.Errorf("expected a fresh budget of %d, got %d", MaxLoginAttempts, status.AttemptsRemaining)
	}
}
