package authz

import (
	"errors"
	"strings"
)

// Guard errors, translated by the middleware layer into HTTP statuses.
var (
	ErrNotAuthenticated = errors.New("authentication required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoleRequired     = errors.New("insufficient role")
)

// rolePermissions is the static role → permission table. Permissions use
// "resource:action" naming; "resource:*" grants every action on a resource
// and "*" grants everything.
var rolePermissions = map[Role][]string{
	RoleUser: {
		"tasks:read", "tasks:write",
		"goals:read", "goals:write",
		"habits:read", "habits:write",
		"calendar:read", "calendar:write",
		"templates:read",
		"profile:*",
	},
	RolePremium: {
		"tasks:*",
		"goals:*",
		"habits:*",
		"calendar:*",
		"templates:*",
		"workspaces:*",
		"analytics:read",
		"profile:*",
	},
	RoleAdmin: {
		"*",
	},
}

// HasPermission reports whether role grants permission. Matching checks, in
// order: the global wildcard, an exact match, and a "resource:*" prefix
// wildcard.
func HasPermission(role Role, permission string) bool {
	grants, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, grant := range grants {
		if grant == "*" || grant == permission {
			return true
		}
		if resource, matched := strings.CutSuffix(grant, ":*"); matched {
			if strings.HasPrefix(permission, resource+":") {
				return true
			}
		}
	}
	return false
}

// RequirePermission is the guard form of HasPermission: it returns
// ErrPermissionDenied instead of false so middleware can translate the
// failure into a 403 response.
func RequirePermission(role Role, permission string) error {
	if !HasPermission(role, permission) {
		return ErrPermissionDenied
	}
	return nil
}

// RequireRole enforces the role hierarchy as a guard.
func RequireRole(role, required Role) error {
	if !role.AtLeast(required) {
		return ErrRoleRequired
	}
	return nil
}

// Permissions returns the grant list for a role. The returned slice is
// shared; callers must not mutate it.
func Permissions(role Role) []string {
	return rolePermissions[role]
}
