package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/planwise/backend/internal/authz"
	"github.com/planwise/backend/internal/ratelimit"
	"github.com/planwise/backend/internal/store"
)

// generousLimiters returns a limiter set that will not interfere with
// tests exercising other login protections.
func generousLimiters(t *testing.T) *ratelimit.Set {
	t.Helper()
	set := &ratelimit.Set{
		Login:         ratelimit.NewFixedLimiter(1000, time.Minute),
		Registration:  ratelimit.NewFixedLimiter(1000, time.Minute),
		PasswordReset: ratelimit.NewFixedLimiter(1000, time.Minute),
		API:           ratelimit.NewSlidingLimiter(10000, time.Minute),
		Global:        ratelimit.NewSlidingLimiter(10000, time.Hour),
	}
	t.Cleanup(set.Close)
	return set
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceWithLimiters(t, generousLimiters(t))
}

func newTestServiceWithLimiters(t *testing.T, limiters *ratelimit.Set) *Service {
	t.Helper()
	logger := discardLogger()
	st := store.NewMemoryStore()

	blacklist := NewBlacklist(st, logger)
	tokens, err := NewTokenService(TokenServiceConfig{
		Secret:        "test-secret-key-32-characters!!!",
		Salt:          "test-salt",
		Issuer:        "planwise-test",
		Audience:      "planwise-app",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		SessionExpiry: 24 * time.Hour,
	}, blacklist, logger)
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}

	accounts, err := NewAccountStore()
	if err != nil {
		t.Fatalf("failed to create account store: %v", err)
	}

	return NewService(
		tokens,
		NewSessionRegistry(st, logger),
		NewLockoutTracker(st, logger),
		accounts,
		limiters,
		logger,
	)
}

func loginReq(accountID, pin string) LoginRequest {
	return LoginRequest{AccountID: accountID, PIN: pin}
}

func TestLogin_Success(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.User.ID != "demo-user" {
		t.Errorf("expected demo-user, got %q", result.User.ID)
	}
	if result.User.Role != authz.RoleUser {
		t.Errorf("expected user role, got %q", result.User.Role)
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" || result.Tokens.SessionToken == "" {
		t.Fatal("expected a full token triple")
	}

	// The session must be live immediately after login.
	session, err := svc.sessions.Get(ctx, result.Tokens.SessionID)
	if err != nil {
		t.Fatalf("session not registered: %v", err)
	}
	if session.UserID != "demo-user" {
		t.Errorf("session bound to wrong user %q", session.UserID)
	}
}

func TestLogin_PremiumAndAdminSeeds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		accountID string
		pin       string
		role      authz.Role
	}{
		{"demo-premium", "1111", authz.RolePremium},
		{"demo-admin", "9000", authz.RoleAdmin},
	}
	for _, tc := range cases {
		result, err := svc.Login(ctx, loginReq(tc.accountID, tc.pin), testDevice())
		if err != nil {
			t.Fatalf("login %s failed: %v", tc.accountID, err)
		}
		if result.User.Role != tc.role {
			t.Errorf("%s: expected role %q, got %q", tc.accountID, tc.role, result.User.Role)
		}
	}
}

func TestLogin_WrongPINAndUnknownAccountLookAlike(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, errWrongPIN := svc.Login(ctx, loginReq("demo-user", "9999"), testDevice())
	_, errUnknown := svc.Login(ctx, loginReq("no-such-account", "9999"), testDevice())

	for name, err := range map[string]error{"wrong pin": errWrongPIN, "unknown account": errUnknown} {
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
	}
	if errWrongPIN.Error() != errUnknown.Error() {
		t.Error("wrong pin and unknown account must be indistinguishable")
	}
}

func TestLogin_ValidationRejectedBeforeBookkeeping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []LoginRequest{
		{AccountID: "", PIN: "0000"},
		{AccountID: "demo-user", PIN: ""},
		{AccountID: "demo-user", PIN: "abcd"},
		{AccountID: "demo-user", PIN: "123"},
		{AccountID: "demo-user", PIN: "123456789"},
	}
	for _, req := range cases {
		if _, err := svc.Login(ctx, req, testDevice()); !errors.Is(err, ErrInvalidLoginPayload) {
			t.Errorf("request %+v: expected ErrInvalidLoginPayload, got %v", req, err)
		}
	}

	// Malformed payloads must not consume login attempts.
	status := svc.lockouts.Status(ctx, ratelimit.LoginKey("demo-user", testDevice().IPAddress))
	if status.AttemptsRemaining != MaxLoginAttempts {
		t.Errorf("validation failures consumed attempts: %d remaining", status.AttemptsRemaining)
	}
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	device := testDevice()

	for i := 1; i <= MaxLoginAttempts; i++ {
		_, err := svc.Login(ctx, loginReq("demo-user", "9999"), device)
		var loginErr *LoginError
		if !errors.As(err, &loginErr) {
			t.Fatalf("attempt %d: expected LoginError, got %v", i, err)
		}

		wantRemaining := MaxLoginAttempts - i
		if loginErr.AttemptsRemaining != wantRemaining {
			t.Errorf("attempt %d: expected %d attempts remaining, got %d", i, wantRemaining, loginErr.AttemptsRemaining)
		}

		// Every failure in the budget reads as a credential error, the
		// last one with zero attempts left.
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Even the correct PIN is refused while locked out.
	_, err := svc.Login(ctx, loginReq("demo-user", "0000"), device)
	var loginErr *LoginError
	if !errors.As(err, &loginErr) || !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked during lockout, got %v", err)
	}
	if loginErr.LockedUntil.Before(time.Now()) {
		t.Error("LockedUntil should be in the future")
	}
}

func TestLogin_LockoutIsPerAccountIPKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	deviceA := DeviceInfo{IPAddress: "203.0.113.7"}
	deviceB := DeviceInfo{IPAddress: "203.0.113.8"}

	for i := 0; i < MaxLoginAttempts; i++ {
		svc.Login(ctx, loginReq("demo-user", "9999"), deviceA)
	}

	if _, err := svc.Login(ctx, loginReq("demo-user", "0000"), deviceA); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lockout for original ip, got %v", err)
	}

	// The same account from another address carries its own counter.
	if _, err := svc.Login(ctx, loginReq("demo-user", "0000"), deviceB); err != nil {
		t.Fatalf("login from different ip should succeed: %v", err)
	}
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	device := testDevice()

	for i := 0; i < 3; i++ {
		svc.Login(ctx, loginReq("demo-user", "9999"), device)
	}
	if _, err := svc.Login(ctx, loginReq("demo-user", "0000"), device); err != nil {
		t.Fatalf("login should succeed after three failures: %v", err)
	}

	// The next failure starts from a clean slate.
	_, err := svc.Login(ctx, loginReq("demo-user", "9999"), device)
	var loginErr *LoginError
	if !errors.As(err, &loginErr) {
		t.Fatalf("expected LoginError, got %v", err)
	}
	if loginErr.AttemptsRemaining != MaxLoginAttempts-1 {
		t.Errorf("expected %d attempts remaining after reset, got %d", MaxLoginAttempts-1, loginErr.AttemptsRemaining)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	set := &ratelimit.Set{
		Login:         ratelimit.NewFixedLimiter(2, time.Minute),
		Registration:  ratelimit.NewFixedLimiter(1000, time.Minute),
		PasswordReset: ratelimit.NewFixedLimiter(1000, time.Minute),
		API:           ratelimit.NewSlidingLimiter(10000, time.Minute),
		Global:        ratelimit.NewSlidingLimiter(10000, time.Hour),
	}
	t.Cleanup(set.Close)
	svc := newTestServiceWithLimiters(t, set)
	ctx := context.Background()

	svc.Login(ctx, loginReq("demo-user", "9999"), testDevice())
	svc.Login(ctx, loginReq("demo-user", "9999"), testDevice())

	// Correct credentials are irrelevant once the budget is spent.
	_, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	var loginErr *LoginError
	if !errors.As(err, &loginErr) || !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if loginErr.RetryAfter <= 0 {
		t.Errorf("expected positive RetryAfter, got %v", loginErr.RetryAfter)
	}
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestResolve_ValidBearerToken(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Login(context.Background(), loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	authCtx := svc.Resolve(bearerRequest(result.Tokens.AccessToken))
	if !authCtx.IsAuthenticated {
		t.Fatal("expected authenticated context")
	}
	if authCtx.User.ID != "demo-user" {
		t.Errorf("expected demo-user, got %q", authCtx.User.ID)
	}
	if authCtx.SessionID != result.Tokens.SessionID {
		t.Error("resolved context lost the session id")
	}
}

func TestResolve_AccessTokenCookie(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Login(context.Background(), loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: result.Tokens.AccessToken})

	if authCtx := svc.Resolve(r); !authCtx.IsAuthenticated {
		t.Fatal("expected cookie token to authenticate")
	}
}

func TestResolve_RefreshTokenNotAcceptedAsBearer(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Login(context.Background(), loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	for name, token := range map[string]string{
		"refresh": result.Tokens.RefreshToken,
		"session": result.Tokens.SessionToken,
	} {
		if authCtx := svc.Resolve(bearerRequest(token)); authCtx.IsAuthenticated {
			t.Errorf("%s token must not authenticate API calls", name)
		}
	}
}

func TestResolve_DemoHeaders(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name          string
		header, value string
		want          bool
	}{
		{"exact user marker", DemoUserHeader, "demo-user", true},
		{"exact token marker", DemoTokenHeader, "demo-token-2024", true},
		{"case variant", DemoUserHeader, "Demo-User", false},
		{"leading space", DemoUserHeader, " demo-user", false},
		{"trailing space", DemoUserHeader, "demo-user ", false},
		{"prefix", DemoUserHeader, "demo-user-extra", false},
		{"stale token year", DemoTokenHeader, "demo-token-2023", false},
		{"null byte injection", DemoUserHeader, "demo-user\x00", false},
		{"empty value", DemoUserHeader, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			r.Header.Set(tc.header, tc.value)

			authCtx := svc.Resolve(r)
			if authCtx.IsAuthenticated != tc.want {
				t.Fatalf("authenticated = %v, want %v", authCtx.IsAuthenticated, tc.want)
			}
			if tc.want && !authCtx.IsDemo {
				t.Error("demo marker must resolve to a demo identity")
			}
		})
	}
}

func TestResolve_TokenOverridesDemoMarkers(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Login(context.Background(), loginReq("demo-premium", "1111"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	r := bearerRequest(result.Tokens.AccessToken)
	r.Header.Set(DemoUserHeader, DemoUserValue)

	authCtx := svc.Resolve(r)
	if authCtx.User.ID != "demo-premium" {
		t.Fatalf("demo marker downgraded a token identity to %q", authCtx.User.ID)
	}
	if authCtx.User.Role != authz.RolePremium {
		t.Errorf("expected premium role, got %q", authCtx.User.Role)
	}
}

func TestResolve_InvalidTokenFallsBackToDemoMarker(t *testing.T) {
	svc := newTestService(t)

	r := bearerRequest("not-a-real-token")
	r.Header.Set(DemoUserHeader, DemoUserValue)

	authCtx := svc.Resolve(r)
	if !authCtx.IsAuthenticated || !authCtx.IsDemo {
		t.Fatal("expected demo fallback when the bearer token is garbage")
	}
}

func TestLogout_RevokesSessionForAllTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(ctx, result.Tokens.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	// The access token dies with the session.
	if authCtx := svc.Resolve(bearerRequest(result.Tokens.AccessToken)); authCtx.IsAuthenticated {
		t.Fatal("access token still valid after logout")
	}

	// So does the refresh token, which was never presented at logout.
	if _, err := svc.Refresh(ctx, result.Tokens.RefreshToken, testDevice()); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}
}

func TestLogout_WrongKeyTokenCannotRevokeSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A token signed with the wrong key names the victim's session. The
	// sessionID is no secret (the session cookie is client-readable), so
	// logout must not take the claims at face value.
	forged := wrongKeyToken(t, result.Tokens.SessionID)
	if err := svc.Logout(ctx, forged); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected forged logout to be rejected, got %v", err)
	}

	if authCtx := svc.Resolve(bearerRequest(result.Tokens.AccessToken)); !authCtx.IsAuthenticated {
		t.Fatal("victim session was revoked by a forged token")
	}
}

func TestRefresh_HappyPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, result.Tokens.RefreshToken, testDevice())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if authCtx := svc.Resolve(bearerRequest(refreshed.AccessToken)); !authCtx.IsAuthenticated {
		t.Fatal("refreshed access token should authenticate")
	}
}

func TestRefresh_DeadSessionRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, loginReq("demo-user", "0000"), testDevice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.sessions.Delete(ctx, result.Tokens.SessionID); err != nil {
		t.Fatalf("session delete failed: %v", err)
	}

	if _, err := svc.Refresh(ctx, result.Tokens.RefreshToken, testDevice()); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for dead session, got %v", err)
	}
}
