// Package authz provides role-based authorization for the planner API:
// a static role/permission table with wildcard matching, per-role feature
// flags, and usage-quota checks against live resource counts.
package authz

import "strings"

// Role is a user's access tier. Roles form an ordered hierarchy:
// user < premium < admin.
type Role string

const (
	RoleUser    Role = "user"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

// roleLevels orders the hierarchy for AtLeast comparisons
var roleLevels = map[Role]int{
	RoleUser:    1,
	RolePremium: 2,
	RoleAdmin:   3,
}

// ParseRole normalises a stored role string. Unknown values map to
// RoleUser so a corrupt role column can never grant elevated access.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePremium:
		return RolePremium
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r sits at or above required in the hierarchy.
// A handler requiring premium accepts premium and admin callers.
func (r Role) AtLeast(required Role) bool {
	return roleLevels[r] >= roleLevels[required]
}
