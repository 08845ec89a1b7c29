package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/planwise/backend/internal/store"
)

// SessionInactivityLimit is the idle age after which a session is treated
// as expired even if its tokens have not expired.
const SessionInactivityLimit = 24 * time.Hour

// ErrSessionNotFound is returned when a sessionID has no live record.
var ErrSessionNotFound = errors.New("session not found")

// Session is the per-login record keyed by sessionID.
type Session struct {
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	DeviceID     string    `json:"deviceId,omitempty"`
}

// SessionRegistry tracks live sessions in the injected Store. Stale
// sessions are evicted lazily on access; the store's sweep removes the
// rest.
type SessionRegistry struct {
	store  store.Store
	logger *slog.Logger
}

// NewSessionRegistry creates a SessionRegistry
func NewSessionRegistry(s store.Store, logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		store:  s,
		logger: logger,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Register records a new session at login
func (r *SessionRegistry) Register(ctx context.Context, sessionID string, userID, deviceID string) error {
	now := time.Now().UTC()
	session := Session{
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		DeviceID:     deviceID,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, sessionKey(sessionID), data, SessionInactivityLimit)
}

// Get returns the session for sessionID if it exists and is not stale.
// A session idle past the inactivity limit is evicted and reported as
// not found.
func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, found, err := r.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		r.logger.Warn("dropping undecodable session record", "session_id", sessionID, "error", err)
		_ = r.store.Delete(ctx, sessionKey(sessionID))
		return nil, ErrSessionNotFound
	}

	if time.Since(session.LastActivity) > SessionInactivityLimit {
		_ = r.store.Delete(ctx, sessionKey(sessionID))
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

// Touch updates a session's last-activity time, extending its life.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	session.LastActivity = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, sessionKey(sessionID), data, SessionInactivityLimit)
}

// Delete removes a session at logout
func (r *SessionRegistry) Delete(ctx context.Context, sessionID string) error {
	return r.store.Delete(ctx, sessionKey(sessionID))
}
