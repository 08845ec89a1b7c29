package auth

import "github.com/planwise/backend/internal/authz"

// User is the resolved identity carried inside tokens and auth contexts.
// It is produced by token verification or the demo-account table and is
// never persisted by this package.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      authz.Role `json:"role"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Username  string     `json:"username,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	IsDemo    bool       `json:"isDemo"`
}

// Context is the outcome of resolving a request to an identity.
type Context struct {
	User            User
	IsAuthenticated bool
	IsDemo          bool
	SessionID       string
}

// Unauthenticated is the zero resolution outcome.
func Unauthenticated() Context {
	return Context{}
}
