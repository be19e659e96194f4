package domain

import "time"

// Profile is the application-level record attached to a user.
type Profile struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Email            string           `json:"email"`
	FullName         string           `json:"full_name"`
	Role             Role             `json:"role"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	Phone            *string          `json:"phone,omitempty"`
	BusinessCount    int              `json:"business_count"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so snapshots never share the phone pointer.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Phone != nil {
		phone := *p.Phone
		cp.Phone = &phone
	}
	return &cp
}

// ProfileUpdate is a partial profile write; nil fields are left untouched.
type ProfileUpdate struct {
	FullName         *string           `json:"full_name,omitempty"`
	Phone            *string           `json:"phone,omitempty"`
	SubscriptionTier *SubscriptionTier `json:"subscription_tier,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.Phone == nil && u.SubscriptionTier == nil
}

// ApplyTo merges the update into p.
func (u ProfileUpdate) ApplyTo(p *Profile) {
	if p == nil {
		return
	}
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Phone != nil {
		phone := *u.Phone
		p.Phone = &phone
	}
	if u.SubscriptionTier != nil {
		p.SubscriptionTier = *u.SubscriptionTier
	}
}
