package domain

import "errors"

// Sentinel errors shared by the backend, its client and the resolver.
// Wrap them with fmt.Errorf("...: %w") when adding context.
var (
	// ErrEmailNotConfirmed indicates the password matched but the email is unverified.
	ErrEmailNotConfirmed = errors.New("email not confirmed")

	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("user already registered")

	// ErrProfileNotFound indicates there is no profile row for the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrSessionExpired indicates an operation needed a live session and none exists.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked indicates the session was signed out or its refresh token rotated away.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrTokenInvalid indicates a confirmation or refresh token is unknown, used or expired.
	ErrTokenInvalid = errors.New("token invalid or expired")
)
