package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// TokenType distinguishes the three credential kinds. Verification enforces
// the expected type: a refresh token must never authenticate an API call.
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
	SessionTokenType TokenType = "session"
)

// Key-derivation parameters. The signing key is always derived with PBKDF2
// rather than using the operator-supplied secret directly, so a weak
// JWT_SECRET still yields a full-entropy key.
const (
	keyIterations = 100_000
	keyLength     = 32
)

// devFallbackSecret is used when JWT_SECRET is absent outside production.
// Startup fails instead when running in production mode.
const devFallbackSecret = "planwise-dev-only-secret-do-not-deploy"

// Token service errors
var (
	ErrTokenCreation       = errors.New("token creation failed")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// DeviceInfo carries the request attributes bound into a token triple.
type DeviceInfo struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Claims is the JWT payload for all three token kinds.
type Claims struct {
	User      User      `json:"user"`
	Type      TokenType `json:"type"`
	SessionID string    `json:"sessionId"`
	DeviceID  string    `json:"deviceId,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	jwt.RegisteredClaims
}

// TokenTriple is the credential set minted at login. All three tokens share
// one sessionID so they can be revoked together.
type TokenTriple struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	SessionToken     string `json:"sessionToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
	SessionExpiresIn int64  `json:"sessionExpiresIn"`
	SessionID        string `json:"-"`
	DeviceID         string `json:"-"`
}

// RefreshedAccess is the result of exchanging a refresh token.
type RefreshedAccess struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// VerifyResult is the structured outcome of token verification. VerifyToken
// never panics and never returns a bare error: expiry is distinguished from
// other failures so callers can handle the two differently.
type VerifyResult struct {
	Valid   bool
	Claims  *Claims
	Expired bool
	Err     error
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret        string
	Salt          string
	Issuer        string
	Audience      string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	SessionExpiry time.Duration
	Production    bool
}

// TokenService issues and verifies signed credentials. It is stateless
// aside from the revocation blacklist.
type TokenService struct {
	signingKey    []byte
	issuer        string
	audience      string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	sessionExpiry time.Duration
	blacklist     *Blacklist
	logger        *slog.Logger
}

// NewTokenService derives the signing key and creates a TokenService. A
// missing secret is fatal in production; in development a built-in fallback
// is substituted with a logged warning.
func NewTokenService(cfg TokenServiceConfig, blacklist *Blacklist, logger *slog.Logger) (*TokenService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	secret := cfg.Secret
	if secret == "" {
		if cfg.Production {
			return nil, errors.New("JWT secret is required in production")
		}
		logger.Warn("JWT_SECRET not set, using development fallback secret")
		secret = devFallbackSecret
	}

	key := pbkdf2.Key([]byte(secret), []byte(cfg.Salt), keyIterations, keyLength, sha256.New)

	return &TokenService{
		signingKey:    key,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		sessionExpiry: cfg.SessionExpiry,
		blacklist:     blacklist,
		logger:        logger,
	}, nil
}

// NewSessionID generates a 256-bit random hex session identifier
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session id generation: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// deviceFingerprint derives a device identifier from the login request.
// The timestamp makes the identifier unique per login, not per device.
func deviceFingerprint(device DeviceInfo, at time.Time) string {
	sum := sha256.Sum256([]byte(device.UserAgent + "|" + device.IPAddress + "|" + at.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:32]
}

// CreateAuthTokens mints a token triple for user: access, refresh, and
// session tokens sharing a fresh sessionID and device fingerprint but
// carrying their own type and expiry.
func (s *TokenService) CreateAuthTokens(user User, device DeviceInfo) (*TokenTriple, error) {
	sessionID, err := NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}

	now := time.Now()
	deviceID := deviceFingerprint(device, now)

	accessToken, err := s.sign(user, AccessTokenType, sessionID, deviceID, device, now, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}
	refreshToken, err := s.sign(user, RefreshTokenType, sessionID, deviceID, device, now, s.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}
	sessionToken, err := s.sign(user, SessionTokenType, sessionID, deviceID, device, now, s.sessionExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}

	return &TokenTriple{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionToken:     sessionToken,
		ExpiresIn:        int64(s.accessExpiry.Seconds()),
		RefreshExpiresIn: int64(s.refreshExpiry.Seconds()),
		SessionExpiresIn: int64(s.sessionExpiry.Seconds()),
		SessionID:        sessionID,
		DeviceID:         deviceID,
	}, nil
}

// sign builds and signs a single token
func (s *TokenService) sign(user User, typ TokenType, sessionID, deviceID string, device DeviceInfo, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		User:      user,
		Type:      typ,
		SessionID: sessionID,
		DeviceID:  deviceID,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// VerifyToken verifies signature, issuer, and audience. Expired tokens set
// Expired=true and still expose their claims so callers can, for example,
// blacklist a session from an expired token.
func (s *TokenService) VerifyToken(tokenString string) VerifyResult {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))

	if err != nil {
		result := VerifyResult{Err: err, Expired: errors.Is(err, jwt.ErrTokenExpired)}
		// Claims are only exposed for expiry failures. Expiry is checked
		// after the signature, so an expired result is still an authentic
		// token; any other failure leaves the claims untrusted.
		if result.Expired && token != nil {
			if claims, ok := token.Claims.(*Claims); ok {
				result.Claims = claims
			}
		}
		return result
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return VerifyResult{Err: errors.New("malformed token payload")}
	}

	return VerifyResult{Valid: true, Claims: claims}
}

// RefreshAccessToken exchanges a valid refresh token for a new access token
// bound to the same session and device. A device-fingerprint mismatch is a
// soft signal: it is logged but does not reject the exchange.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string, device DeviceInfo) (*RefreshedAccess, error) {
	result := s.VerifyToken(refreshToken)
	if !result.Valid {
		return nil, ErrInvalidRefreshToken
	}
	claims := result.Claims
	if claims.Type != RefreshTokenType {
		return nil, ErrInvalidRefreshToken
	}
	if s.IsTokenBlacklisted(ctx, claims.SessionID) {
		return nil, ErrInvalidRefreshToken
	}

	if claims.UserAgent != device.UserAgent || claims.IPAddress != device.IPAddress {
		s.logger.Warn("device fingerprint mismatch on token refresh",
			"user_id", claims.User.ID,
			"session_id", claims.SessionID,
			"token_ip", claims.IPAddress,
			"request_ip", device.IPAddress)
	}

	now := time.Now()
	accessToken, err := s.sign(claims.User, AccessTokenType, claims.SessionID, claims.DeviceID,
		DeviceInfo{IPAddress: claims.IPAddress, UserAgent: claims.UserAgent}, now, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}

	return &RefreshedAccess{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.accessExpiry.Seconds()),
	}, nil
}

// BlacklistToken revokes the session a token belongs to. Works on expired
// tokens too, since logout may race with access-token expiry. Insertion is
// idempotent.
func (s *TokenService) BlacklistToken(ctx context.Context, tokenString string) error {
	result := s.VerifyToken(tokenString)
	if !result.Valid && !result.Expired {
		return fmt.Errorf("refusing to revoke from unverified token: %w", result.Err)
	}
	if result.Claims == nil || result.Claims.SessionID == "" {
		return errors.New("token carries no session id")
	}
	return s.blacklist.Add(ctx, result.Claims.SessionID)
}

// IsTokenBlacklisted reports whether a sessionID has been revoked
func (s *TokenService) IsTokenBlacklisted(ctx context.Context, sessionID string) bool {
	return s.blacklist.Contains(ctx, sessionID)
}

// AccessExpiry returns the access token lifetime
func (s *TokenService) AccessExpiry() time.Duration {
	return s.accessExpiry
}

// RefreshExpiry returns the refresh token lifetime
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

// SessionExpiry returns the session token lifetime
func (s *TokenService) SessionExpiry() time.Duration {
	return s.sessionExpiry
}
