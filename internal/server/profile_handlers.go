package server

import (
	"welcomemat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/profiles/me
// @Summary Get my profile
// @Description Get the authenticated user's profile
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{profile=models.Profile,password_reset_url=string,url=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profiles/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	p, err := s.profileService.GetByUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return s.profileDetail(c, p)
}

// GetProfile handles GET /api/profiles/:id
// @Summary Get profile
// @Description Get a profile by ID. Only the owner may read it.
// @Tags profiles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Profile ID"
// @Success 200 {object} object{profile=models.Profile,password_reset_url=string,url=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profiles/{id} [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	p, err := s.profileService.Get(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return s.profileDetail(c, p)
}

// UpdateProfile handles PUT /api/profiles/:id
// @Summary Update profile
// @Tags profiles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Profile ID"
// @Param request body object{bio=string} true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profiles/{id} [put]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Bio string `json:"bio"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	p, err := s.profileService.Update(c.UserContext(), currentUserID(c), id, req.Bio)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(p)
}

// DeleteProfile handles DELETE /api/profiles/:id
// @Summary Delete profile
// @Tags profiles
// @Security BearerAuth
// @Param id path int true "Profile ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profiles/{id} [delete]
func (s *Server) DeleteProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.profileService.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) profileDetail(c *fiber.Ctx, p *models.Profile) error {
	resetURL, err := s.profileService.PasswordResetURL(c.UserContext(), s.config.AppBaseURL, p)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"profile":            p,
		"password_reset_url": resetURL,
		"url":                routeURL(c, "profile-detail", fiber.Map{"id": p.ID}),
	})
}
