package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/local-scope/localscope/internal/api/dto"
	"github.com/local-scope/localscope/internal/auth"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/service"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

// AuthAPI is the subset of the auth service the handlers need.
type AuthAPI interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*domain.User, *domain.Session, error)
	VerifyEmail(ctx context.Context, token string) error
	SignInWithPassword(ctx context.Context, email, password string) (*domain.User, *domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.User, *domain.Session, error)
	SignOut(ctx context.Context, principal *auth.Principal) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, attrs service.UserAttributes) (*domain.User, error)
}

var _ AuthAPI = (*service.AuthService)(nil)

// AuthHandler exposes the /auth/v1 endpoints.
type AuthHandler struct {
	auth AuthAPI
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService AuthAPI) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// SignUp handles POST /auth/v1/signup.
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, session, err := h.auth.SignUp(c.UserContext(), service.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return apperrors.MapError(err)
	}

	return c.Status(http.StatusCreated).JSON(dto.Envelope[dto.AuthResponse]{Data: dto.AuthResponse{
		User:    dto.NewUserResponse(user),
		Session: dto.NewSessionResponse(session),
	}})
}

// Verify handles GET /auth/v1/verify?token=.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return apperrors.NewValidationError("token required", nil)
	}
	if err := h.auth.VerifyEmail(c.UserContext(), token); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.Envelope[fiber.Map]{Data: fiber.Map{"confirmed": true}})
}

// Token handles POST /auth/v1/token?grant_type=password|refresh_token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var (
		user    *domain.User
		session *domain.Session
		err     error
	)

	switch grant := c.Query("grant_type"); grant {
	case dto.GrantPassword:
		var req dto.PasswordGrantRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req.Email == "" || req.Password == "" {
			return apperrors.NewValidationError("email and password required", nil)
		}
		user, session, err = h.auth.SignInWithPassword(c.UserContext(), req.Email, req.Password)
	case dto.GrantRefreshToken:
		var req dto.RefreshGrantRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token required", nil)
		}
		user, session, err = h.auth.Refresh(c.UserContext(), req.RefreshToken)
	default:
		return apperrors.NewValidationError("unsupported grant_type", map[string]any{"grant_type": grant})
	}
	if err != nil {
		return apperrors.MapError(err)
	}

	return c.JSON(dto.Envelope[dto.AuthResponse]{Data: dto.AuthResponse{
		User:    dto.NewUserResponse(user),
		Session: dto.NewSessionResponse(session),
	}})
}

// Logout handles POST /auth/v1/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.auth.SignOut(c.UserContext(), principal); err != nil {
		return apperrors.MapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetUser handles GET /auth/v1/user.
func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	user, err := h.auth.GetUser(c.UserContext(), principal.UserID)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.Envelope[dto.UserResponse]{Data: dto.NewUserResponse(user)})
}

// UpdateUser handles PUT /auth/v1/user.
func (h *AuthHandler) UpdateUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.UpdateUser(c.UserContext(), principal.UserID, service.UserAttributes{
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.Envelope[dto.UserResponse]{Data: dto.NewUserResponse(user)})
}
