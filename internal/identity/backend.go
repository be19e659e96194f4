package identity

import (
	"context"

	"github.com/local-scope/localscope/internal/domain"
)

// SignUpRequest is the account data sent on signup.
type SignUpRequest struct {
	Email    string
	Password string
	FullName string
	Role     domain.Role
}

// AuthBackend is the auth half of the backend collaborator.
//
// OnAuthStateChange must deliver the current session (or nil) to a new
// listener once, then exactly one event per sign-in, sign-out, token refresh
// and user update.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	// SignUp returns a nil session when the email must be confirmed first.
	SignUp(ctx context.Context, req SignUpRequest) (*domain.Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the live session, refreshing it if needed, or nil.
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange(listener func(domain.AuthEvent)) (unsubscribe func())
}

// ProfileStore is the profiles table of the backend collaborator.
type ProfileStore interface {
	// GetProfile returns domain.ErrProfileNotFound when no row exists yet.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error)
}
