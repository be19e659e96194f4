package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/local-scope/localscope/internal/domain"
)

// Wire codes shared with the backend client.
const (
	CodeValidationFailed   = "validation_failed"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeConflict           = "conflict"
	CodeInternal           = "internal_error"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserExists         = "user_already_exists"
	CodeProfileNotFound    = "profile_not_found"
	CodeSessionExpired     = "session_expired"
	CodeTokenInvalid       = "token_invalid"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(codeForStatus(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}

	switch {
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return NewDomainError(CodeEmailNotConfirmed, "Email not confirmed", http.StatusBadRequest, nil)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return NewDomainError(CodeInvalidCredentials, "Invalid login credentials", http.StatusBadRequest, nil)
	case errors.Is(err, domain.ErrUserExists):
		return NewDomainError(CodeUserExists, "User already registered", http.StatusUnprocessableEntity, nil)
	case errors.Is(err, domain.ErrProfileNotFound):
		return NewDomainError(CodeProfileNotFound, "Profile not found", http.StatusNotFound, nil)
	case errors.Is(err, domain.ErrSessionExpired), errors.Is(err, domain.ErrSessionRevoked):
		return NewDomainError(CodeSessionExpired, "Session expired", http.StatusUnauthorized, nil)
	case errors.Is(err, domain.ErrTokenInvalid):
		return NewDomainError(CodeTokenInvalid, "Token invalid or expired", http.StatusBadRequest, nil)
	case errors.Is(err, pgx.ErrNoRows):
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}

	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		if status >= 500 {
			return CodeInternal
		}
		return CodeValidationFailed
	}
}
