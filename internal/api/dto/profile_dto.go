package dto

import (
	"github.com/local-scope/localscope/internal/domain"
)

// ErrorBody is the error envelope rendered by the error middleware.
type ErrorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// Envelope wraps every successful payload.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ProfileResponse wraps a profile row.
type ProfileResponse struct {
	Profile *domain.Profile `json:"profile"`
}

// UpdateProfileRequest payload for PATCH /rest/v1/profiles/:user_id.
type UpdateProfileRequest struct {
	FullName         *string `json:"full_name,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	SubscriptionTier *string `json:"subscription_tier,omitempty"`
}

// ToUpdate converts the request into a domain update.
func (r UpdateProfileRequest) ToUpdate() domain.ProfileUpdate {
	update := domain.ProfileUpdate{FullName: r.FullName, Phone: r.Phone}
	if r.SubscriptionTier != nil {
		tier := domain.SubscriptionTier(*r.SubscriptionTier)
		update.SubscriptionTier = &tier
	}
	return update
}

// NewUpdateProfileRequest converts a domain update into its wire form.
func NewUpdateProfileRequest(u domain.ProfileUpdate) UpdateProfileRequest {
	req := UpdateProfileRequest{FullName: u.FullName, Phone: u.Phone}
	if u.SubscriptionTier != nil {
		tier := string(*u.SubscriptionTier)
		req.SubscriptionTier = &tier
	}
	return req
}
