package domain

// Role enumerates application roles stored on a profile.
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleBusinessUser Role = "business_user"
	RoleAdmin        Role = "admin"
)

// ParseRole maps a stored role string onto a known role.
// Anything unrecognised is treated as a customer.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleBusinessUser:
		return RoleBusinessUser
	default:
		return RoleCustomer
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleBusinessUser, RoleAdmin:
		return true
	}
	return false
}

// SubscriptionTier enumerates paid plans.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPro  SubscriptionTier = "pro"
)

// Valid reports whether t is one of the known tiers.
func (t SubscriptionTier) Valid() bool {
	return t == TierFree || t == TierPro
}
