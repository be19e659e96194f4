package navigation

import (
	"strings"

	"github.com/local-scope/localscope/internal/domain"
)

// Route targets issued by the guard.
const (
	RouteLogin             = "/auth"
	RouteAdminHome         = "/admin"
	RouteBusinessDashboard = "/business-dashboard"
	RouteHome              = "/home"
)

// Public entry segments reachable without a session.
const (
	SegmentAuth           = "auth"
	SegmentOnboarding     = "onboarding"
	SegmentEmailConfirmed = "email-confirmed"
)

var publicEntrySegments = map[string]struct{}{
	SegmentAuth:           {},
	SegmentOnboarding:     {},
	SegmentEmailConfirmed: {},
}

// FirstSegment returns the first path segment of location, ignoring any
// query or fragment. Route groups written as "(auth)" count as "auth".
func FirstSegment(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	location = strings.TrimLeft(location, "/")
	if i := strings.IndexByte(location, '/'); i >= 0 {
		location = location[:i]
	}
	return strings.TrimSuffix(strings.TrimPrefix(location, "("), ")")
}

// IsPublicEntry reports whether location is under a public entry segment.
func IsPublicEntry(location string) bool {
	_, ok := publicEntrySegments[FirstSegment(location)]
	return ok
}

// HomeFor maps a role to its home route. Anything that is not admin or
// business_user goes to the general home.
func HomeFor(role domain.Role) string {
	switch role {
	case domain.RoleAdmin:
		return RouteAdminHome
	case domain.RoleBusinessUser:
		return RouteBusinessDashboard
	default:
		return RouteHome
	}
}
