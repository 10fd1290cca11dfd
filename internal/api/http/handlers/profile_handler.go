package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/attendance-hub/internal/api/dto"
	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/domain"
	"github.com/spec-kit/attendance-hub/internal/userdata"
	apperrors "github.com/spec-kit/attendance-hub/pkg/util/errorutil"
)

// ProfileHandler serves the session user's profile.
type ProfileHandler struct {
	profiles *userdata.Store
}

// NewProfileHandler constructs handler.
func NewProfileHandler(profiles *userdata.Store) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// sessionProfile returns the merged profile when it belongs to the caller.
func (h *ProfileHandler) sessionProfile(c *fiber.Ctx) (domain.UserProfile, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.UserProfile{}, apperrors.NewUnauthorized("authentication required")
	}
	profile, ok := h.profiles.Get(c.UserContext())
	if !ok {
		return domain.UserProfile{}, userdata.ErrNoSession
	}
	if !strings.EqualFold(profile.Email, principal.Email) {
		return domain.UserProfile{}, apperrors.NewForbidden("session belongs to another user")
	}
	return profile, nil
}

// Get handles GET /profile.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	profile, err := h.sessionProfile(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// Update handles PATCH /profile. Keys may use any alias spelling.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	if _, err := h.sessionProfile(c); err != nil {
		return err
	}
	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if len(fields) == 0 {
		return apperrors.NewValidationError("no fields to update", nil)
	}
	if _, ok := fields[domain.FieldRole]; ok {
		if principal, _ := auth.PrincipalFromContext(c); principal.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("only admins can change roles")
		}
	}
	profile, err := h.profiles.Update(c.UserContext(), fields)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profile})
}

// GetImage handles GET /profile/image.
func (h *ProfileHandler) GetImage(c *fiber.Ctx) error {
	profile, err := h.sessionProfile(c)
	if err != nil {
		return err
	}
	image, ok := h.profiles.ProfileImage(c.UserContext(), profile.Email)
	if !ok {
		return apperrors.NewNotFound("profile image", nil)
	}
	return c.JSON(fiber.Map{"data": dto.ProfileImageResponse{Email: profile.Email, Image: image}})
}

// PutImage handles PUT /profile/image.
func (h *ProfileHandler) PutImage(c *fiber.Ctx) error {
	profile, err := h.sessionProfile(c)
	if err != nil {
		return err
	}
	var req dto.ProfileImageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := h.profiles.SetProfileImage(c.UserContext(), profile.Email, req.Image); err != nil {
		return err
	}
	if req.Image == "" {
		return c.SendStatus(http.StatusNoContent)
	}
	return c.JSON(fiber.Map{"data": dto.ProfileImageResponse{Email: profile.Email, Image: req.Image}})
}
