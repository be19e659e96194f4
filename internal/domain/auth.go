package domain

import "time"

// Session represents an authenticated backend connection.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEventKind names the transitions reported by the auth backend.
type AuthEventKind string

const (
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is one notification from the auth state stream.
// Session is nil when the event leaves the client signed out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// RefreshToken is a stored, rotatable credential bound to one session.
type RefreshToken struct {
	Token     string
	SessionID string
	UserID    string
	ExpiresAt time.Time
}
