package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/local-scope/localscope/internal/api/dto"
	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/service"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

// ProfileAPI is the subset of the profile service the handlers need.
type ProfileAPI interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error)
}

var _ ProfileAPI = (*service.ProfileService)(nil)

// ProfilesHandler serves the profiles table keyed by user_id.
type ProfilesHandler struct {
	profiles ProfileAPI
}

// NewProfilesHandler constructs handler.
func NewProfilesHandler(profiles ProfileAPI) *ProfilesHandler {
	return &ProfilesHandler{profiles: profiles}
}

// Get handles GET /rest/v1/profiles/:user_id.
func (h *ProfilesHandler) Get(c *fiber.Ctx) error {
	profile, err := h.profiles.Get(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.Envelope[dto.ProfileResponse]{Data: dto.ProfileResponse{Profile: profile}})
}

// Update handles PATCH /rest/v1/profiles/:user_id.
func (h *ProfilesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	profile, err := h.profiles.Update(c.UserContext(), c.Params("user_id"), req.ToUpdate())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.Envelope[dto.ProfileResponse]{Data: dto.ProfileResponse{Profile: profile}})
}
