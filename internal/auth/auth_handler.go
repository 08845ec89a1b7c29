package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/planwise/backend/internal/metrics"
)

// APIResponse is the standard response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError is the error detail in an APIResponse
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RefreshRequest is the token refresh payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest is the logout payload; the token may instead come from the
// Authorization header.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Handler exposes the authentication endpoints
type Handler struct {
	service    *Service
	production bool
}

// NewHandler creates a Handler. Production mode controls the Secure flag
// on auth cookies.
func NewHandler(service *Service, production bool) *Handler {
	return &Handler{
		service:    service,
		production: production,
	}
}

// Login handles PIN authentication
// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	device := DeviceInfo{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
	if req.DeviceInfo != nil {
		if req.DeviceInfo.UserAgent != "" {
			device.UserAgent = req.DeviceInfo.UserAgent
		}
	}

	result, err := h.service.Login(r.Context(), req, device)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		h.writeLoginError(w, err)
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.setAuthCookies(w, result.Tokens)
	h.writeSuccess(w, http.StatusOK, result)
}

// Refresh exchanges a refresh token for a new access token
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "refreshToken is required", nil)
		return
	}

	device := DeviceInfo{IPAddress: clientIP(r), UserAgent: r.UserAgent()}

	refreshed, err := h.service.Refresh(r.Context(), req.RefreshToken, device)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("failure").Inc()
		if errors.Is(err, ErrInvalidRefreshToken) {
			h.writeError(w, http.StatusUnauthorized, CodeInvalidRefresh, "Invalid or expired refresh token", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	metrics.RefreshesTotal.WithLabelValues("success").Inc()

	http.SetCookie(w, h.authCookie(AccessTokenCookie, refreshed.AccessToken, true,
		time.Duration(refreshed.ExpiresIn)*time.Second))

	h.writeSuccess(w, http.StatusOK, refreshed)
}

// Logout revokes the caller's session
// POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		var req LogoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "No token supplied", nil)
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidRefresh, "Invalid token", nil)
		return
	}

	h.clearAuthCookies(w)
	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out",
	})
}

// Me returns the resolved identity for the current request
// GET /api/v1/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := h.service.Resolve(r)
	if !authCtx.IsAuthenticated {
		h.writeError(w, http.StatusUnauthorized, CodeAuthRequired, "Authentication required", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"user": authCtx.User,
	})
}

// writeLoginError maps login failures to responses. Credential failures
// carry attemptsRemaining; throttling failures carry retry hints. Unknown
// account and wrong PIN are indistinguishable in the response.
func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	var loginErr *LoginError
	if !errors.As(err, &loginErr) {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	switch {
	case errors.Is(loginErr.Err, ErrInvalidLoginPayload):
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid login payload", nil)

	case errors.Is(loginErr.Err, ErrLoginRateLimited):
		retryAfter := int64(loginErr.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		h.writeError(w, http.StatusTooManyRequests, CodeRateLimited,
			"Too many login attempts. Please try again later.",
			map[string]interface{}{"retryAfter": retryAfter})

	case errors.Is(loginErr.Err, ErrAccountLocked):
		h.writeError(w, http.StatusTooManyRequests, CodeAccountLocked,
			"Account temporarily locked due to repeated failures",
			map[string]interface{}{"lockoutUntil": loginErr.LockedUntil.UTC()})

	case errors.Is(loginErr.Err, ErrInvalidCredentials):
		details := map[string]interface{}{}
		if loginErr.AttemptsRemaining >= 0 {
			details["attemptsRemaining"] = loginErr.AttemptsRemaining
		}
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials", details)

	default:
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// setAuthCookies writes the three auth cookies. The session token is
// deliberately readable by client-side code; the other two are httpOnly.
func (h *Handler) setAuthCookies(w http.ResponseWriter, tokens *TokenTriple) {
	http.SetCookie(w, h.authCookie(AccessTokenCookie, tokens.AccessToken, true,
		time.Duration(tokens.ExpiresIn)*time.Second))
	http.SetCookie(w, h.authCookie(RefreshTokenCookie, tokens.RefreshToken, true,
		time.Duration(tokens.RefreshExpiresIn)*time.Second))
	http.SetCookie(w, h.authCookie(SessionTokenCookie, tokens.SessionToken, false,
		time.Duration(tokens.SessionExpiresIn)*time.Second))
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, SessionTokenCookie} {
		cookie := h.authCookie(name, "", true, 0)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (h *Handler) authCookie(name, value string, httpOnly bool, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}
	json.NewEncoder(w).Encode(response)
}

// clientIP extracts the originating client address, preferring proxy
// headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
