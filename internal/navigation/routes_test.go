package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local-scope/localscope/internal/domain"
)

func TestIsPublicEntry(t *testing.T) {
	tests := []struct {
		location string
		public   bool
	}{
		{"/auth", true},
		{"/auth/sign-up", true},
		{"/(auth)/login", true},
		{"/onboarding?step=2", true},
		{"/email-confirmed#done", true},
		{"email-confirmed", true},
		{"/home", false},
		{"/admin", false},
		{"/authorize", false},
		{"/", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.public, IsPublicEntry(tt.location), tt.location)
	}
}

func TestHomeFor(t *testing.T) {
	assert.Equal(t, RouteAdminHome, HomeFor(domain.RoleAdmin))
	assert.Equal(t, RouteBusinessDashboard, HomeFor(domain.RoleBusinessUser))
	assert.Equal(t, RouteHome, HomeFor(domain.RoleCustomer))
	assert.Equal(t, RouteHome, HomeFor(domain.Role("moderator")))
	assert.Equal(t, RouteHome, HomeFor(""))
}
