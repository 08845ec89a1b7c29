package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pgregory.net/rapid"

	"github.com/planwise/backend/internal/authz"
	"github.com/planwise/backend/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	return newTestTokenServiceWithExpiry(t, 15*time.Minute)
}

func newTestTokenServiceWithExpiry(t *testing.T, accessExpiry time.Duration) *TokenService {
	t.Helper()
	blacklist := NewBlacklist(store.NewMemoryStore(), discardLogger())
	svc, err := NewTokenService(TokenServiceConfig{
		Secret:        "test-secret-key-32-characters!!!",
		Salt:          "test-salt",
		Issuer:        "planwise-test",
		Audience:      "planwise-app",
		AccessExpiry:  accessExpiry,
		RefreshExpiry: 7 * 24 * time.Hour,
		SessionExpiry: 24 * time.Hour,
	}, blacklist, discardLogger())
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	return svc
}

func testUser() User {
	return User{
		ID:     "demo-user",
		Email:  "demo@planwise.app",
		Role:   authz.RoleUser,
		IsDemo: true,
	}
}

func testDevice() DeviceInfo {
	return DeviceInfo{IPAddress: "203.0.113.7", UserAgent: "planwise-test/1.0"}
}

func TestCreateAuthTokens_TripleSharesSession(t *testing.T) {
	svc := newTestTokenService(t)

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}
	if triple.SessionID == "" {
		t.Fatal("expected non-empty session id")
	}

	tokens := map[TokenType]string{
		AccessTokenType:  triple.AccessToken,
		RefreshTokenType: triple.RefreshToken,
		SessionTokenType: triple.SessionToken,
	}

	for wantType, tokenString := range tokens {
		result := svc.VerifyToken(tokenString)
		if !result.Valid {
			t.Fatalf("%s token failed verification: %v", wantType, result.Err)
		}
		if result.Claims.Type != wantType {
			t.Errorf("expected type %q, got %q", wantType, result.Claims.Type)
		}
		if result.Claims.SessionID != triple.SessionID {
			t.Errorf("%s token session id %q does not match triple session id %q",
				wantType, result.Claims.SessionID, triple.SessionID)
		}
		if result.Claims.Subject != "demo-user" {
			t.Errorf("expected subject demo-user, got %q", result.Claims.Subject)
		}
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	svc := newTestTokenServiceWithExpiry(t, -1*time.Minute)

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	result := svc.VerifyToken(triple.AccessToken)
	if result.Valid {
		t.Fatal("expected expired token to be invalid")
	}
	if !result.Expired {
		t.Fatalf("expected Expired flag, got error %v", result.Err)
	}
	if result.Claims == nil {
		t.Fatal("expected claims to be exposed for expired token")
	}
	if result.Claims.SessionID != triple.SessionID {
		t.Errorf("expired token claims lost session id")
	}
}

func TestVerifyToken_TamperedSignature(t *testing.T) {
	svc := newTestTokenService(t)

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	tampered := triple.AccessToken[:len(triple.AccessToken)-4] + "AAAA"
	if tampered == triple.AccessToken {
		tampered = triple.AccessToken[:len(triple.AccessToken)-4] + "BBBB"
	}

	result := svc.VerifyToken(tampered)
	if result.Valid {
		t.Fatal("expected tampered token to be rejected")
	}
	if result.Expired {
		t.Error("tampered token must not be reported as merely expired")
	}
	if result.Claims != nil {
		t.Error("claims from a failed-signature token must not be exposed")
	}
}

// wrongKeyToken signs a syntactically perfect token with a key the service
// never derived, carrying an arbitrary sessionID.
func wrongKeyToken(t *testing.T, sessionID string) string {
	t.Helper()

	now := time.Now()
	claims := &Claims{
		User:      testUser(),
		Type:      AccessTokenType,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "forged-jti",
			Subject:   testUser().ID,
			Issuer:    "planwise-test",
			Audience:  jwt.ClaimStrings{"planwise-app"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("attacker-key"))
	if err != nil {
		t.Fatalf("signing forged token: %v", err)
	}
	return signed
}

func TestBlacklistToken_RejectsWrongKeyToken(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	if err := svc.BlacklistToken(ctx, wrongKeyToken(t, triple.SessionID)); err == nil {
		t.Fatal("expected revocation from a wrong-key token to be refused")
	}
	if svc.IsTokenBlacklisted(ctx, triple.SessionID) {
		t.Fatal("wrong-key token must not revoke the session it names")
	}
	if result := svc.VerifyToken(triple.AccessToken); !result.Valid {
		t.Fatalf("legitimate token no longer verifies: %v", result.Err)
	}
}

func TestVerifyToken_WrongIssuerRejected(t *testing.T) {
	svc := newTestTokenService(t)

	blacklist := NewBlacklist(store.NewMemoryStore(), discardLogger())
	other, err := NewTokenService(TokenServiceConfig{
		Secret:        "test-secret-key-32-characters!!!",
		Salt:          "test-salt",
		Issuer:        "someone-else",
		Audience:      "planwise-app",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		SessionExpiry: 24 * time.Hour,
	}, blacklist, discardLogger())
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}

	triple, err := other.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	if result := svc.VerifyToken(triple.AccessToken); result.Valid {
		t.Fatal("expected token from a different issuer to be rejected")
	}
}

func TestRefreshAccessToken(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	refreshed, err := svc.RefreshAccessToken(ctx, triple.RefreshToken, testDevice())
	if err != nil {
		t.Fatalf("RefreshAccessToken failed: %v", err)
	}

	result := svc.VerifyToken(refreshed.AccessToken)
	if !result.Valid {
		t.Fatalf("refreshed access token failed verification: %v", result.Err)
	}
	if result.Claims.Type != AccessTokenType {
		t.Errorf("expected access type, got %q", result.Claims.Type)
	}
	if result.Claims.SessionID != triple.SessionID {
		t.Error("refreshed access token must stay bound to the original session")
	}
}

func TestRefreshAccessToken_RejectsAccessToken(t *testing.T) {
	svc := newTestTokenService(t)

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	// An access token is signed with the same key but carries the wrong
	// type claim.
	if _, err := svc.RefreshAccessToken(context.Background(), triple.AccessToken, testDevice()); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if _, err := svc.RefreshAccessToken(context.Background(), triple.SessionToken, testDevice()); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken for session token, got %v", err)
	}
}

func TestBlacklistToken_RevokesWholeSession(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	if svc.IsTokenBlacklisted(ctx, triple.SessionID) {
		t.Fatal("fresh session must not be blacklisted")
	}

	if err := svc.BlacklistToken(ctx, triple.AccessToken); err != nil {
		t.Fatalf("BlacklistToken failed: %v", err)
	}

	if !svc.IsTokenBlacklisted(ctx, triple.SessionID) {
		t.Fatal("session should be blacklisted after revocation")
	}

	// The refresh token shares the session id, so the exchange dies too.
	if _, err := svc.RefreshAccessToken(ctx, triple.RefreshToken, testDevice()); err != ErrInvalidRefreshToken {
		t.Fatalf("expected refresh to fail for revoked session, got %v", err)
	}

	// Revoking again is not an error.
	if err := svc.BlacklistToken(ctx, triple.AccessToken); err != nil {
		t.Fatalf("second revocation failed: %v", err)
	}
}

func TestBlacklistToken_WorksOnExpiredToken(t *testing.T) {
	svc := newTestTokenServiceWithExpiry(t, -1*time.Minute)
	ctx := context.Background()

	triple, err := svc.CreateAuthTokens(testUser(), testDevice())
	if err != nil {
		t.Fatalf("CreateAuthTokens failed: %v", err)
	}

	if err := svc.BlacklistToken(ctx, triple.AccessToken); err != nil {
		t.Fatalf("expected expired token to be revocable: %v", err)
	}
	if !svc.IsTokenBlacklisted(ctx, triple.SessionID) {
		t.Fatal("session should be blacklisted")
	}
}

func TestNewTokenService_ProductionRequiresSecret(t *testing.T) {
	blacklist := NewBlacklist(store.NewMemoryStore(), discardLogger())

	_, err := NewTokenService(TokenServiceConfig{
		Production:    true,
		Issuer:        "planwise-test",
		Audience:      "planwise-app",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		SessionExpiry: 24 * time.Hour,
	}, blacklist, discardLogger())
	if err == nil {
		t.Fatal("expected error for missing secret in production")
	}

	// Outside production the fallback secret is substituted.
	svc, err := NewTokenService(TokenServiceConfig{
		Issuer:        "planwise-test",
		Audience:      "planwise-app",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		SessionExpiry: 24 * time.Hour,
	}, blacklist, discardLogger())
	if err != nil {
		t.Fatalf("expected dev fallback, got error: %v", err)
	}
	if svc == nil {
		t.Fatal("expected service")
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if len(id) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

// Any identity survives the sign/verify round trip intact, and the access
// token expiry lands 15 minutes from issuance.
func TestTokenRoundTripProperty(t *testing.T) {
	svc := newTestTokenService(t)

	rapid.Check(t, func(t *rapid.T) {
		user := User{
			ID:    rapid.StringMatching(`[a-z0-9-]{1,32}`).Draw(t, "id"),
			Email: rapid.StringMatching(`[a-z]{3,10}@[a-z]{3,10}\.[a-z]{2,3}`).Draw(t, "email"),
			Role: rapid.SampledFrom([]authz.Role{
				authz.RoleUser, authz.RolePremium, authz.RoleAdmin,
			}).Draw(t, "role"),
			IsDemo: rapid.Bool().Draw(t, "isDemo"),
		}

		before := time.Now()
		triple, err := svc.CreateAuthTokens(user, testDevice())
		if err != nil {
			t.Fatalf("CreateAuthTokens failed: %v", err)
		}
		after := time.Now()

		result := svc.VerifyToken(triple.AccessToken)
		if !result.Valid {
			t.Fatalf("verification failed: %v", result.Err)
		}

		got := result.Claims.User
		if got.ID != user.ID || got.Email != user.Email || got.Role != user.Role || got.IsDemo != user.IsDemo {
			t.Fatalf("identity mutated in round trip: sent %+v, got %+v", user, got)
		}

		exp := result.Claims.ExpiresAt.Time
		if exp.Before(before.Add(15*time.Minute).Add(-2*time.Second)) ||
			exp.After(after.Add(15*time.Minute).Add(2*time.Second)) {
			t.Fatalf("access expiry out of range: %v", exp)
		}

		if strings.Count(triple.AccessToken, ".") != 2 {
			t.Fatalf("expected a compact JWS, got %q", triple.AccessToken)
		}
	})
}
