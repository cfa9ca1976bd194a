package server

import (
	"errors"
	"log/slog"

	"welcomemat/internal/middleware"
	"welcomemat/internal/models"
	"welcomemat/internal/service"

	"github.com/gofiber/fiber/v2"
)

type invitationRequest struct {
	Email string `json:"email"`
}

// ListInvitations handles GET /api/invitations
// @Summary List my invitations
// @Description Invitations issued by the authenticated user, newest first
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} object{invitations=[]models.Invitation,total=int,limit=int,offset=int}
// @Failure 401 {object} models.ErrorResponse
// @Router /invitations [get]
func (s *Server) ListInvitations(c *fiber.Ctx) error {
	page := parsePagination(c, s.config.PaginationItems)

	list, total, err := s.invitationService.List(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"invitations": list,
		"total":       total,
		"limit":       page.Limit,
		"offset":      page.Offset,
	})
}

// CreateInvitation handles POST /api/invitations
// @Summary Invite someone
// @Description Create an invitation and email the activation link. A failed delivery still creates the invitation and reports delivered=false.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string} true "Invitee"
// @Success 201 {object} object{invitation=models.Invitation,delivered=bool,url=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /invitations [post]
func (s *Server) CreateInvitation(c *fiber.Ctx) error {
	var req invitationRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	inv, err := s.invitationService.Create(c.UserContext(), currentUserID(c), req.Email, s.config.AppBaseURL)
	delivered := err == nil
	if err != nil && (inv == nil || !errors.Is(err, service.ErrDeliveryFailed)) {
		return respondServiceError(c, err)
	}

	detail := routeURL(c, "invitation-detail", fiber.Map{"id": inv.ID})
	if detail != "" {
		c.Location(detail)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invitation": inv,
		"delivered":  delivered,
		"url":        detail,
	})
}

// GetInvitation handles GET /api/invitations/:id
// @Summary Get invitation
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invitation ID"
// @Success 200 {object} object{invitation=models.Invitation,url=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /invitations/{id} [get]
func (s *Server) GetInvitation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	inv, err := s.invitationService.Get(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"invitation": inv,
		"url":        routeURL(c, "invitation-detail", fiber.Map{"id": inv.ID}),
	})
}

// UpdateInvitation handles PUT /api/invitations/:id
// @Summary Change invitee
// @Description Change the invitee email. The invitation returns to created and previously mailed links stop working.
// @Tags invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invitation ID"
// @Param request body object{email=string} true "Invitee"
// @Success 200 {object} models.Invitation
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /invitations/{id} [put]
func (s *Server) UpdateInvitation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req invitationRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	inv, err := s.invitationService.Update(c.UserContext(), currentUserID(c), id, req.Email)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(inv)
}

// DeleteInvitation handles DELETE /api/invitations/:id
// @Summary Delete invitation
// @Tags invitations
// @Security BearerAuth
// @Param id path int true "Invitation ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /invitations/{id} [delete]
func (s *Server) DeleteInvitation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.invitationService.Delete(c.UserContext(), currentUserID(c), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendInvitation handles POST /api/invitations/:id/send
// @Summary Send invitation
// @Description (Re)send the activation email. Trying to send someone else's invitation revokes the caller's token.
// @Tags invitations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invitation ID"
// @Success 200 {object} object{invitation=models.Invitation,delivered=bool}
// @Success 202 {object} object{invitation=models.Invitation,delivered=bool}
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /invitations/{id}/send [post]
func (s *Server) SendInvitation(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	inv, err := s.invitationService.Send(c.UserContext(), currentUserID(c), id, s.config.AppBaseURL)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"invitation": inv, "delivered": true})
	case errors.Is(err, service.ErrDeliveryFailed) && inv != nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"invitation": inv, "delivered": false})
	case models.HasCode(err, models.CodeForbidden):
		middleware.Logger.WarnContext(c.UserContext(), "foreign invitation send attempt, revoking token",
			slog.Uint64("invitation_id", uint64(id)))
		if rerr := s.revokeCurrentToken(c); rerr != nil {
			middleware.Logger.ErrorContext(c.UserContext(), "token revocation failed",
				slog.String("error", rerr.Error()))
		}
		return models.RespondWithError(c, fiber.StatusForbidden, err)
	default:
		return respondServiceError(c, err)
	}
}
