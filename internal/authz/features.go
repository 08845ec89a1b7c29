package authz

import "errors"

// ErrFeatureUnavailable is returned by RequireFeature when a role's plan
// does not include a feature. The middleware layer maps it to a 402
// response carrying an upgrade hint.
var ErrFeatureUnavailable = errors.New("feature not available on current plan")

// Feature keys gated per role
const (
	FeatureQuickCapture     = "quick-capture"
	FeatureCalendarSync     = "calendar-sync"
	FeaturePremiumAnalytics = "premium-analytics"
	FeatureCustomTemplates  = "custom-templates"
	FeaturePresence         = "presence"
	FeaturePrioritySupport  = "priority-support"
	FeatureAdminDashboard   = "admin-dashboard"
)

// roleFeatures is the static feature-flag table: one boolean per feature
// per role. Absent keys read as false.
var roleFeatures = map[Role]map[string]bool{
	RoleUser: {
		FeatureQuickCapture:     true,
		FeatureCalendarSync:     false,
		FeaturePremiumAnalytics: false,
		FeatureCustomTemplates:  false,
		FeaturePresence:         false,
		FeaturePrioritySupport:  false,
		FeatureAdminDashboard:   false,
	},
	RolePremium: {
		FeatureQuickCapture:     true,
		FeatureCalendarSync:     true,
		FeaturePremiumAnalytics: true,
		FeatureCustomTemplates:  true,
		FeaturePresence:         true,
		FeaturePrioritySupport:  true,
		FeatureAdminDashboard:   false,
	},
	RoleAdmin: {
		FeatureQuickCapture:     true,
		FeatureCalendarSync:     true,
		FeaturePremiumAnalytics: true,
		FeatureCustomTemplates:  true,
		FeaturePresence:         true,
		FeaturePrioritySupport:  true,
		FeatureAdminDashboard:   true,
	},
}

// HasFeature reports whether role's plan includes the feature
func HasFeature(role Role, feature string) bool {
	flags, ok := roleFeatures[role]
	if !ok {
		return false
	}
	return flags[feature]
}

// RequireFeature is the guard form of HasFeature.
func RequireFeature(role Role, feature string) error {
	if !HasFeature(role, feature) {
		return ErrFeatureUnavailable
	}
	return nil
}

// Features returns the feature-flag map for a role. The returned map is
// shared; callers must not mutate it.
func Features(role Role) map[string]bool {
	return roleFeatures[role]
}
