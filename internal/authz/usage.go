package authz

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUsageLimitExceeded is returned when a role's quota for a resource
// kind is exhausted. Mapped to a 402 response with an upgrade hint.
var ErrUsageLimitExceeded = errors.New("usage limit exceeded for current plan")

// Resource kinds subject to per-role quotas
const (
	ResourceWorkspaces = "workspaces"
	ResourceGoals      = "goals"
	ResourceHabits     = "habits"
	ResourceBlocks     = "blocks"
)

// Unlimited marks a quota with no ceiling
const Unlimited = -1

// roleUsageLimits maps role → resource kind → maximum owned count.
var roleUsageLimits = map[Role]map[string]int{
	RoleUser: {
		ResourceWorkspaces: 1,
		ResourceGoals:      10,
		ResourceHabits:     10,
		ResourceBlocks:     200,
	},
	RolePremium: {
		ResourceWorkspaces: 10,
		ResourceGoals:      100,
		ResourceHabits:     100,
		ResourceBlocks:     5000,
	},
	RoleAdmin: {
		ResourceWorkspaces: Unlimited,
		ResourceGoals:      Unlimited,
		ResourceHabits:     Unlimited,
		ResourceBlocks:     Unlimited,
	},
}

// UsageCounter supplies live owned-resource counts. Implemented by the
// Postgres usage repository; tests substitute an in-memory counter.
type UsageCounter interface {
	Count(ctx context.Context, userID, resource string) (int, error)
}

// UsageStatus reports the outcome of a quota check.
type UsageStatus struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

// UsageChecker evaluates role quotas against live counts.
type UsageChecker struct {
	counter UsageCounter
	logger  *slog.Logger
}

// NewUsageChecker creates a UsageChecker
func NewUsageChecker(counter UsageCounter, logger *slog.Logger) *UsageChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageChecker{
		counter: counter,
		logger:  logger,
	}
}

// Check compares the live count of resource owned by userID against the
// role's quota. A failing count query is logged and treated as a deny:
// quota enforcement must not fail open on infrastructure errors.
func (c *UsageChecker) Check(ctx context.Context, userID string, role Role, resource string) (UsageStatus, error) {
	limits, ok := roleUsageLimits[role]
	if !ok {
		limits = roleUsageLimits[RoleUser]
	}

	limit, ok := limits[resource]
	if !ok {
		c.logger.Warn("usage check for unknown resource kind", "resource", resource)
		return UsageStatus{Allowed: false}, ErrUsageLimitExceeded
	}

	if limit == Unlimited {
		return UsageStatus{Allowed: true, Current: 0, Limit: Unlimited, Remaining: Unlimited}, nil
	}

	current, err := c.counter.Count(ctx, userID, resource)
	if err != nil {
		c.logger.Error("usage count query failed, denying",
			"user_id", userID, "resource", resource, "error", err)
		return UsageStatus{Allowed: false, Limit: limit}, err
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	status := UsageStatus{
		Allowed:   current < limit,
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
	}
	if !status.Allowed {
		return status, ErrUsageLimitExceeded
	}
	return status, nil
}

// Limit returns the quota for a role and resource kind
func Limit(role Role, resource string) (int, bool) {
	limits, ok := roleUsageLimits[role]
	if !ok {
		return 0, false
	}
	limit, ok := limits[resource]
	return limit, ok
}
