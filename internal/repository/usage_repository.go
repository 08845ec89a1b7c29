package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/planwise/backend/internal/authz"
	"github.com/planwise/backend/internal/metrics"
)

// usageTables maps quota resource kinds to their backing tables. The map
// doubles as a whitelist: unknown kinds never reach the query builder.
var usageTables = map[string]string{
	authz.ResourceWorkspaces: "workspaces",
	authz.ResourceGoals:      "goals",
	authz.ResourceHabits:     "habits",
	authz.ResourceBlocks:     "blocks",
}

// UsageRepository supplies live owned-resource counts for quota checks.
// It implements authz.UsageCounter.
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new UsageRepository instance
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Count returns how many rows of resource the user currently owns
func (r *UsageRepository) Count(ctx context.Context, userID, resource string) (int, error) {
	table, ok := usageTables[resource]
	if !ok {
		return 0, fmt.Errorf("unknown usage resource %q", resource)
	}

	defer metrics.TimeQuery("count_" + table)()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = $1", table)
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("counting %s for user %s: %w", table, userID, err)
	}

	return count, nil
}

var _ authz.UsageCounter = (*UsageRepository)(nil)
