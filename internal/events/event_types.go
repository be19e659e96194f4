package events

import (
	"time"

	"github.com/local-scope/localscope/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserSignedUp   EventType = "user_signed_up"
	EventEmailConfirmed EventType = "email_confirmed"
	EventUserSignedOut  EventType = "user_signed_out"
	EventProfileUpdated EventType = "profile_updated"
)

// Event represents an account lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserSignedUpPayload payload.
type UserSignedUpPayload struct {
	Email             string      `json:"email"`
	FullName          string      `json:"full_name"`
	Role              domain.Role `json:"role"`
	ConfirmationToken string      `json:"-"`
	AutoConfirmed     bool        `json:"auto_confirmed"`
}

// UserSignedOutPayload payload.
type UserSignedOutPayload struct {
	SessionID string `json:"session_id"`
}

// ProfileUpdatedPayload payload.
type ProfileUpdatedPayload struct {
	Fields []string `json:"fields"`
}
