// Package auth implements the access-control core: token issuing and
// verification, request-to-identity resolution with a demo fallback,
// PIN login with lockout protection, and session lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/planwise/backend/internal/ratelimit"
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeInvalidRefresh     = "INVALID_REFRESH_TOKEN"
)

// Cookie names set on successful login
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	SessionTokenCookie = "session_token"
)

// Auth service errors
var (
	ErrInvalidLoginPayload = errors.New("invalid login payload")
	ErrLoginRateLimited    = errors.New("too many login attempts")
	ErrAccountLocked       = errors.New("account temporarily locked")
)

// LoginError wraps a login failure with throttling detail for the response.
type LoginError struct {
	Err               error
	AttemptsRemaining int
	LockedUntil       time.Time
	RetryAfter        time.Duration
}

func (e *LoginError) Error() string { return e.Err.Error() }

// Unwrap lets callers match the underlying sentinel with errors.Is
func (e *LoginError) Unwrap() error { return e.Err }

// LoginRequest is the PIN login payload.
type LoginRequest struct {
	AccountID  string      `json:"accountId" validate:"required,max=64"`
	PIN        string      `json:"pin" validate:"required,numeric,min=4,max=8"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User   User         `json:"user"`
	Tokens *TokenTriple `json:"tokens"`
}

// Service is the authentication gate: it turns requests into identities
// and runs the login, refresh, and logout flows.
type Service struct {
	tokens   *TokenService
	sessions *SessionRegistry
	lockouts *LockoutTracker
	accounts *AccountStore
	limiters *ratelimit.Set
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates the authentication gate
func NewService(
	tokens *TokenService,
	sessions *SessionRegistry,
	lockouts *LockoutTracker,
	accounts *AccountStore,
	limiters *ratelimit.Set,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tokens:   tokens,
		sessions: sessions,
		lockouts: lockouts,
		accounts: accounts,
		limiters: limiters,
		validate: validator.New(),
		logger:   logger,
	}
}

// Tokens exposes the underlying token service
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Resolve turns a request into an identity. Priority order, first match
// wins: a valid non-blacklisted bearer token (header or cookie), then the
// exact-match demo credentials, then unauthenticated. A valid token
// overrides any demo markers present in the same request, so demo headers
// can never downgrade or confuse a real identity.
func (s *Service) Resolve(r *http.Request) Context {
	if tokenString := extractToken(r); tokenString != "" {
		if authCtx, ok := s.resolveToken(r.Context(), tokenString); ok {
			return authCtx
		}
	}

	// Exact byte equality only: "Demo-User", prefixes, or padded values
	// must not authenticate.
	if r.Header.Get(DemoUserHeader) == DemoUserValue ||
		r.Header.Get(DemoTokenHeader) == DemoTokenValue {
		return Context{
			User:            DemoUser(),
			IsAuthenticated: true,
			IsDemo:          true,
		}
	}

	return Unauthenticated()
}

// resolveToken verifies a bearer token and checks revocation and session
// liveness. Any failure resolves to unauthenticated, never to an error.
func (s *Service) resolveToken(ctx context.Context, tokenString string) (Context, bool) {
	result := s.tokens.VerifyToken(tokenString)
	if !result.Valid || result.Claims.Type != AccessTokenType {
		return Unauthenticated(), false
	}

	claims := result.Claims
	if s.tokens.IsTokenBlacklisted(ctx, claims.SessionID) {
		return Unauthenticated(), false
	}

	// A session idle past the inactivity limit is expired even though the
	// token signature is still valid.
	if _, err := s.sessions.Get(ctx, claims.SessionID); err != nil {
		return Unauthenticated(), false
	}
	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		s.logger.Warn("session touch failed", "session_id", claims.SessionID, "error", err)
	}

	return Context{
		User:            claims.User,
		IsAuthenticated: true,
		IsDemo:          claims.User.IsDemo,
		SessionID:       claims.SessionID,
	}, true
}

// Login runs the PIN login flow: payload validation before any
// bookkeeping, rate limiting per account:IP and per IP, lockout check,
// then a constant-time credential comparison. Unknown account and wrong
// PIN produce the identical generic error.
func (s *Service) Login(ctx context.Context, req LoginRequest, device DeviceInfo) (*LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &LoginError{Err: fmt.Errorf("%w: %v", ErrInvalidLoginPayload, err), AttemptsRemaining: -1}
	}

	key := ratelimit.LoginKey(req.AccountID, device.IPAddress)

	if !s.limiters.Login.Allow(ctx, key) {
		status := s.limiters.Login.Status(ctx, key)
		return nil, &LoginError{
			Err:               ErrLoginRateLimited,
			AttemptsRemaining: -1,
			RetryAfter:        status.RetryAfter(time.Now()),
		}
	}
	if !s.limiters.Global.Allow(ctx, device.IPAddress) {
		status := s.limiters.Global.Status(ctx, device.IPAddress)
		return nil, &LoginError{
			Err:               ErrLoginRateLimited,
			AttemptsRemaining: -1,
			RetryAfter:        status.RetryAfter(time.Now()),
		}
	}

	if lockout := s.lockouts.Status(ctx, key); lockout.Locked {
		return nil, &LoginError{
			Err:         ErrAccountLocked,
			LockedUntil: lockout.LockedUntil,
		}
	}

	user, err := s.accounts.Authenticate(req.AccountID, req.PIN)
	if err != nil {
		status := s.lockouts.RecordFailure(ctx, key)
		s.logger.Info("login failed",
			"account_id", req.AccountID,
			"ip", device.IPAddress,
			"attempts_remaining", status.AttemptsRemaining)

		// The failure that trips the counter still reads as a credential
		// error with zero attempts left; the lockout itself surfaces on
		// the next attempt.
		return nil, &LoginError{Err: ErrInvalidCredentials, AttemptsRemaining: status.AttemptsRemaining}
	}

	s.lockouts.Reset(ctx, key)

	tokens, err := s.tokens.CreateAuthTokens(user, device)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Register(ctx, tokens.SessionID, user.ID, tokens.DeviceID); err != nil {
		return nil, fmt.Errorf("session registration: %w", err)
	}

	s.logger.Info("login succeeded",
		"account_id", user.ID,
		"session_id", tokens.SessionID,
		"role", user.Role)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new access token, provided the
// session is alive and not revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*RefreshedAccess, error) {
	result := s.tokens.VerifyToken(refreshToken)
	if !result.Valid || result.Claims.Type != RefreshTokenType {
		return nil, ErrInvalidRefreshToken
	}
	if s.tokens.IsTokenBlacklisted(ctx, result.Claims.SessionID) {
		return nil, ErrInvalidRefreshToken
	}
	if _, err := s.sessions.Get(ctx, result.Claims.SessionID); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	refreshed, err := s.tokens.RefreshAccessToken(ctx, refreshToken, device)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Touch(ctx, result.Claims.SessionID); err != nil {
		s.logger.Warn("session touch failed on refresh", "session_id", result.Claims.SessionID, "error", err)
	}

	return refreshed, nil
}

// Logout revokes the token's session and removes its session record. The
// two tokens of the triple not presented here die with the shared
// sessionID.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	result := s.tokens.VerifyToken(tokenString)
	if !result.Valid && !result.Expired {
		return ErrInvalidRefreshToken
	}
	if result.Claims == nil || result.Claims.SessionID == "" {
		return ErrInvalidRefreshToken
	}

	if err := s.tokens.BlacklistToken(ctx, tokenString); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, result.Claims.SessionID); err != nil {
		s.logger.Warn("session delete failed on logout", "session_id", result.Claims.SessionID, "error", err)
	}

	s.logger.Info("logout", "session_id", result.Claims.SessionID, "user_id", result.Claims.User.ID)
	return nil
}

// extractToken pulls a bearer token from the Authorization header or the
// access_token cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
