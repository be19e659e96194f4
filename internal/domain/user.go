package domain

import "time"

// UserMetadata carries the attributes supplied at signup.
type UserMetadata struct {
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// User is the backend auth record; profiles are attached to it by user id.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	Metadata         UserMetadata
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Confirmed reports whether the user verified their email address.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}
