package identity

import (
	"errors"
	"strings"

	"github.com/local-scope/localscope/internal/domain"
)

// AuthErrorKind classifies a failed login or signup.
type AuthErrorKind int

const (
	AuthErrorUnknown AuthErrorKind = iota
	AuthErrorEmailNotConfirmed
	AuthErrorInvalidCredentials
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthErrorEmailNotConfirmed:
		return "email_not_confirmed"
	case AuthErrorInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}

// AuthError is a classified auth failure.
type AuthError struct {
	Kind AuthErrorKind
	// Message is the raw backend message.
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the end user.
func (e *AuthError) UserMessage() string {
	switch e.Kind {
	case AuthErrorEmailNotConfirmed:
		return "Please confirm your email address before signing in. Check your inbox for the confirmation link."
	case AuthErrorInvalidCredentials:
		return "Invalid email or password. Please try again."
	default:
		return e.Message
	}
}

// IsAuthErrorKind reports whether err is an AuthError of the given kind.
func IsAuthErrorKind(err error, kind AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

func classifyAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	kind := AuthErrorUnknown
	switch {
	case errors.Is(err, domain.ErrEmailNotConfirmed), strings.Contains(lower, "email not confirmed"):
		kind = AuthErrorEmailNotConfirmed
	case errors.Is(err, domain.ErrInvalidCredentials), strings.Contains(lower, "invalid login credentials"):
		kind = AuthErrorInvalidCredentials
	}
	return &AuthError{Kind: kind, Message: msg, Err: err}
}
