package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey ContextKey = "user_id"
	// EmailKey is the context key for the authenticated user email
	EmailKey ContextKey = "email"
	// RoleKey is the context key for the authenticated user role
	RoleKey ContextKey = "role"
	// SessionIDKey is the context key for the session identifier
	SessionIDKey ContextKey = "session_id"
	// IsDemoKey is the context key marking a demo identity
	IsDemoKey ContextKey = "is_demo"
)

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// ExtractRole extracts the role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// ExtractSessionID extracts the session identifier from the request context
func ExtractSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(string)
	return sessionID, ok
}

// IsDemo reports whether the request carries a demo identity
func IsDemo(ctx context.Context) bool {
	isDemo, ok := ctx.Value(IsDemoKey).(bool)
	return ok && isDemo
}
