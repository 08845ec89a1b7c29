package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/planwise/backend/internal/store"
)

// blacklistTTL bounds how long a revoked sessionID is remembered. It equals
// the refresh token lifetime, the longest-lived credential in a triple:
// once every token carrying the sessionID has expired on its own, keeping
// the entry buys nothing.
const blacklistTTL = 7 * 24 * time.Hour

// Blacklist is the set of revoked sessionIDs, consulted on every token
// resolution. Backed by the injected Store so multi-replica deployments
// can share it through Redis.
type Blacklist struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewBlacklist creates a Blacklist with the default TTL
func NewBlacklist(s store.Store, logger *slog.Logger) *Blacklist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blacklist{
		store:  s,
		ttl:    blacklistTTL,
		logger: logger,
	}
}

// Add revokes a sessionID. Idempotent: revoking twice is not an error.
func (b *Blacklist) Add(ctx context.Context, sessionID string) error {
	return b.store.Set(ctx, "blacklist:"+sessionID, []byte("1"), b.ttl)
}

// Contains reports whether sessionID has been revoked. A store failure is
// treated as revoked: authentication must not fail open when the
// revocation state is unreadable.
func (b *Blacklist) Contains(ctx context.Context, sessionID string) bool {
	_, found, err := b.store.Get(ctx, "blacklist:"+sessionID)
	if err != nil {
		b.logger.Error("blacklist lookup failed, treating session as revoked",
			"session_id", sessionID, "error", err)
		return true
	}
	return found
}
