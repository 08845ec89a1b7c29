package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/planwise/backend/internal/auth"
	"github.com/planwise/backend/internal/authz"
	appctx "github.com/planwise/backend/internal/context"
	"github.com/planwise/backend/internal/metrics"
)

// Authorization error codes
const (
	CodeRoleRequired       = "ROLE_REQUIRED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeFeatureUnavailable = "FEATURE_UNAVAILABLE"
	CodeUsageLimitExceeded = "USAGE_LIMIT_EXCEEDED"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AuthMiddleware resolves request identities and enforces access rules on
// protected routes.
type AuthMiddleware struct {
	service *auth.Service
	usage   *authz.UsageChecker
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(service *auth.Service, usage *authz.UsageChecker) *AuthMiddleware {
	return &AuthMiddleware{
		service: service,
		usage:   usage,
	}
}

// Authenticate resolves the request to an identity and rejects
// unauthenticated requests. Demo markers authenticate like any other
// credential; downstream guards see only the resolved role.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := m.service.Resolve(r)
		if !authCtx.IsAuthenticated {
			writeAuthzError(w, http.StatusUnauthorized, auth.CodeAuthRequired, "Authentication required", nil)
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, authCtx.User.ID)
		ctx = context.WithValue(ctx, appctx.EmailKey, authCtx.User.Email)
		ctx = context.WithValue(ctx, appctx.RoleKey, string(authCtx.User.Role))
		ctx = context.WithValue(ctx, appctx.SessionIDKey, authCtx.SessionID)
		ctx = context.WithValue(ctx, appctx.IsDemoKey, authCtx.IsDemo)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose resolved role sits below required in
// the role hierarchy. Must run after Authenticate.
func (m *AuthMiddleware) RequireRole(required authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFromContext(r.Context())
			if err := authz.RequireRole(role, required); err != nil {
				metrics.PermissionDenials.WithLabelValues("role").Inc()
				writeAuthzError(w, http.StatusForbidden, CodeRoleRequired,
					"Insufficient role for this resource",
					map[string]interface{}{"required": string(required)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects requests whose resolved role does not hold the
// permission. Must run after Authenticate.
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFromContext(r.Context())
			if err := authz.RequirePermission(role, permission); err != nil {
				metrics.PermissionDenials.WithLabelValues("permission").Inc()
				writeAuthzError(w, http.StatusForbidden, CodePermissionDenied,
					"Permission denied",
					map[string]interface{}{"required": permission})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature rejects requests whose resolved role does not include the
// feature flag. The 402 status and upgradeRequired marker tell the client
// to render an upgrade prompt rather than an error page.
func (m *AuthMiddleware) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFromContext(r.Context())
			if err := authz.RequireFeature(role, feature); err != nil {
				metrics.PermissionDenials.WithLabelValues("feature").Inc()
				writeAuthzError(w, http.StatusPaymentRequired, CodeFeatureUnavailable,
					"This feature is not available on your plan",
					map[string]interface{}{
						"feature":         feature,
						"upgradeRequired": true,
					})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUsage rejects resource-creation requests once the caller owns as
// many of the resource as their role's quota allows. Must run after
// Authenticate.
func (m *AuthMiddleware) RequireUsage(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := appctx.ExtractUserID(r.Context())
			role := roleFromContext(r.Context())

			status, err := m.usage.Check(r.Context(), userID, role, resource)
			if err != nil {
				metrics.PermissionDenials.WithLabelValues("usage").Inc()
				writeAuthzError(w, http.StatusPaymentRequired, CodeUsageLimitExceeded,
					"Usage limit reached for your plan",
					map[string]interface{}{
						"resource":        resource,
						"limit":           status.Limit,
						"current":         status.Current,
						"upgradeRequired": true,
					})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// roleFromContext reads the role injected by Authenticate. An absent or
// unknown role degrades to the base role, never to elevated access.
func roleFromContext(ctx context.Context) authz.Role {
	role, _ := appctx.ExtractRole(ctx)
	return authz.ParseRole(role)
}

// writeAuthzError writes a JSON error response
func writeAuthzError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	return appctx.ExtractUserID(ctx)
}

// ExtractRole extracts the resolved role from the request context
func ExtractRole(ctx context.Context) authz.Role {
	return roleFromContext(ctx)
}
