package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/local-scope/localscope/internal/api/dto"
	"github.com/local-scope/localscope/internal/domain"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

// APIError is an error response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	// Err is the domain sentinel for Code, when there is one.
	Err error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d (%s)", e.Status, e.Code)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

var sentinels = map[string]error{
	apperrors.CodeEmailNotConfirmed:  domain.ErrEmailNotConfirmed,
	apperrors.CodeInvalidCredentials: domain.ErrInvalidCredentials,
	apperrors.CodeUserExists:         domain.ErrUserExists,
	apperrors.CodeProfileNotFound:    domain.ErrProfileNotFound,
	apperrors.CodeSessionExpired:     domain.ErrSessionExpired,
	apperrors.CodeUnauthorized:       domain.ErrSessionExpired,
	apperrors.CodeTokenInvalid:       domain.ErrTokenInvalid,
}

func decodeError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	var body dto.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		apiErr.Details = body.Error.Details
	} else {
		apiErr.Message = http.StatusText(status)
	}
	apiErr.Err = sentinels[apiErr.Code]
	return apiErr
}
