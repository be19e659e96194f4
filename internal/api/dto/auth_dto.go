package dto

import (
	"time"

	"github.com/local-scope/localscope/internal/domain"
)

// Grant types accepted by POST /auth/v1/token.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// SignUpRequest payload for new accounts.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// PasswordGrantRequest payload for grant_type=password.
type PasswordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshGrantRequest payload for grant_type=refresh_token.
type RefreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateUserRequest payload for PUT /auth/v1/user.
type UpdateUserRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// UserResponse is the public view of an auth user.
type UserResponse struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	FullName         string      `json:"full_name"`
	Role             domain.Role `json:"role"`
	EmailConfirmedAt *time.Time  `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// SessionResponse carries the tokens of an issued session.
type SessionResponse struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponse is returned by signup and token grants. Session is nil when
// the account still has to confirm its email.
type AuthResponse struct {
	User    UserResponse     `json:"user"`
	Session *SessionResponse `json:"session"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		FullName:         u.Metadata.FullName,
		Role:             u.Metadata.Role,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

// NewSessionResponse maps a domain session; nil stays nil.
func NewSessionResponse(s *domain.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		ID:           s.ID,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "bearer",
		IssuedAt:     s.IssuedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// DomainSession rebuilds the client-side session; nil when none was issued.
func (r AuthResponse) DomainSession() *domain.Session {
	if r.Session == nil {
		return nil
	}
	return &domain.Session{
		ID:           r.Session.ID,
		UserID:       r.User.ID,
		Email:        r.User.Email,
		AccessToken:  r.Session.AccessToken,
		RefreshToken: r.Session.RefreshToken,
		IssuedAt:     r.Session.IssuedAt,
		ExpiresAt:    r.Session.ExpiresAt,
	}
}
