package authz

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"user", RoleUser},
		{"premium", RolePremium},
		{"admin", RoleAdmin},
		{"ADMIN", RoleAdmin},
		{"  premium ", RolePremium},
		{"", RoleUser},
		{"superuser", RoleUser},
		{"Admin;drop", RoleUser},
	}

	for _, tt := range tests {
		if got := ParseRole(tt.input); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// A caller whose role sits above the required role must always be accepted.
func TestRoleHierarchyMonotonicity(t *testing.T) {
	ordered := []Role{RoleUser, RolePremium, RoleAdmin}

	for i, required := range ordered {
		for j, caller := range ordered {
			got := caller.AtLeast(required)
			want := j >= i
			if got != want {
				t.Errorf("%s.AtLeast(%s) = %v, want %v", caller, required, got, want)
			}
		}
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       Role
		permission string
		want       bool
	}{
		{RoleUser, "tasks:read", true},
		{RoleUser, "tasks:write", true},
		{RoleUser, "workspaces:write", false},
		{RoleUser, "analytics:read", false},
		{RoleUser, "profile:delete", true}, // profile:* wildcard
		{RolePremium, "workspaces:create", true},
		{RolePremium, "analytics:read", true},
		{RolePremium, "analytics:write", false},
		{RolePremium, "admin:users", false},
		{RoleAdmin, "anything:at-all", true}, // global wildcard
		{RoleAdmin, "tasks:read", true},
		{Role("ghost"), "tasks:read", false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.permission); got != tt.want {
			t.Errorf("HasPermission(%s, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
		}
	}
}

// A "resource:*" grant must not leak across resource boundaries: the prefix
// match has to stop at the colon.
func TestWildcardDoesNotCrossResources(t *testing.T) {
	if HasPermission(RolePremium, "workspacesadmin:read") {
		t.Error("workspaces:* must not match workspacesadmin:read")
	}
	if HasPermission(RoleUser, "profilex:read") {
		t.Error("profile:* must not match profilex:read")
	}
}

func TestRequireGuards(t *testing.T) {
	if err := RequirePermission(RoleUser, "tasks:read"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := RequirePermission(RoleUser, "analytics:read"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}

	if err := RequireRole(RoleAdmin, RolePremium); err != nil {
		t.Errorf("admin calling premium handler: expected nil, got %v", err)
	}
	if err := RequireRole(RoleUser, RolePremium); !errors.Is(err, ErrRoleRequired) {
		t.Errorf("expected ErrRoleRequired, got %v", err)
	}
}

func TestHasFeature(t *testing.T) {
	tests := []struct {
		role    Role
		feature string
		want    bool
	}{
		{RoleUser, FeatureQuickCapture, true},
		{RoleUser, FeaturePremiumAnalytics, false},
		{RolePremium, FeaturePremiumAnalytics, true},
		{RolePremium, FeatureAdminDashboard, false},
		{RoleAdmin, FeatureAdminDashboard, true},
		{RoleUser, "unknown-feature", false},
	}

	for _, tt := range tests {
		if got := HasFeature(tt.role, tt.feature); got != tt.want {
			t.Errorf("HasFeature(%s, %q) = %v, want %v", tt.role, tt.feature, got, tt.want)
		}
	}

	if err := RequireFeature(RoleUser, FeaturePremiumAnalytics); !errors.Is(err, ErrFeatureUnavailable) {
		t.Errorf("expected ErrFeatureUnavailable, got %v", err)
	}
}

// Feature access must be monotone in the role hierarchy: an upgrade never
// removes a feature.
func TestFeatureMonotonicity(t *testing.T) {
	pairs := [][2]Role{{RoleUser, RolePremium}, {RolePremium, RoleAdmin}}

	for _, pair := range pairs {
		lower, higher := pair[0], pair[1]
		for feature, enabled := range roleFeatures[lower] {
			if enabled && !HasFeature(higher, feature) {
				t.Errorf("feature %q enabled for %s but not for %s", feature, lower, higher)
			}
		}
	}
}

// stubCounter implements UsageCounter for tests
type stubCounter struct {
	counts map[string]int
	err    error
}

func (s *stubCounter) Count(ctx context.Context, userID, resource string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[resource], nil
}

func TestUsageCheck(t *testing.T) {
	ctx := context.Background()
	counter := &stubCounter{counts: map[string]int{
		ResourceGoals:      9,
		ResourceWorkspaces: 1,
	}}
	checker := NewUsageChecker(counter, nil)

	// Under the limit
	status, err := checker.Check(ctx, "u1", RoleUser, ResourceGoals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Allowed || status.Current != 9 || status.Limit != 10 || status.Remaining != 1 {
		t.Errorf("unexpected status %+v", status)
	}

	// At the limit
	status, err = checker.Check(ctx, "u1", RoleUser, ResourceWorkspaces)
	if !errors.Is(err, ErrUsageLimitExceeded) {
		t.Errorf("expected ErrUsageLimitExceeded, got %v", err)
	}
	if status.Allowed || status.Remaining != 0 {
		t.Errorf("unexpected status %+v", status)
	}

	// Premium has headroom where user does not
	status, err = checker.Check(ctx, "u1", RolePremium, ResourceWorkspaces)
	if err != nil || !status.Allowed {
		t.Errorf("premium workspace check: status=%+v err=%v", status, err)
	}

	// Admin is unlimited and never queries the counter
	status, err = checker.Check(ctx, "u1", RoleAdmin, ResourceBlocks)
	if err != nil || !status.Allowed || status.Limit != Unlimited {
		t.Errorf("admin check: status=%+v err=%v", status, err)
	}
}

// A failing count query must deny, not allow.
func TestUsageCheckFailsClosed(t *testing.T) {
	ctx := context.Background()
	counter := &stubCounter{err: errors.New("connection refused")}
	checker := NewUsageChecker(counter, nil)

	status, err := checker.Check(ctx, "u1", RoleUser, ResourceGoals)
	if err == nil {
		t.Fatal("expected error from failing counter")
	}
	if status.Allowed {
		t.Error("infrastructure failure must not grant quota")
	}
}

// Property: quotas are monotone in the role hierarchy for every resource.
func TestUsageLimitsMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resource := rapid.SampledFrom([]string{
			ResourceWorkspaces, ResourceGoals, ResourceHabits, ResourceBlocks,
		}).Draw(t, "resource")

		userLimit, _ := Limit(RoleUser, resource)
		premiumLimit, _ := Limit(RolePremium, resource)
		adminLimit, _ := Limit(RoleAdmin, resource)

		if adminLimit != Unlimited {
			t.Fatalf("admin quota for %s should be unlimited", resource)
		}
		if premiumLimit != Unlimited && premiumLimit < userLimit {
			t.Fatalf("premium quota for %s (%d) below user quota (%d)", resource, premiumLimit, userLimit)
		}
	})
}
