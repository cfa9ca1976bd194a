package server

import (
	"fmt"
	"log/slog"

	"welcomemat/internal/middleware"
	"welcomemat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// signupPath is where a successful activation sends the invitee.
const signupPath = "/signup"

// ActivateInvitation handles GET /activate/invitation/:uidb64/:token/
// @Summary Activate invitation
// @Description Validate an emailed activation link. On success the invitee email is stored in the session and the browser is redirected to signup.
// @Tags invitations
// @Param uidb64 path string true "Encoded invitation ID"
// @Param token path string true "Activation token"
// @Success 302
// @Failure 400 {object} models.ErrorResponse
// @Router /activate/invitation/{uidb64}/{token}/ [get]
func (s *Server) ActivateInvitation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stored := false
	_, err := s.invitationService.ActivateWith(ctx, c.Params("uidb64"), c.Params("token"),
		func(inv *models.Invitation) error {
			if err := s.setInvitedEmail(c, inv.Email); err != nil {
				return fmt.Errorf("store invited email: %w", err)
			}
			stored = true
			return nil
		})
	if err != nil {
		if stored {
			// Lost a race with another click or a resend; do not leave the address behind.
			if cerr := s.setInvitedEmail(c, ""); cerr != nil {
				middleware.Logger.WarnContext(ctx, "failed to clear invited email",
					slog.String("error", cerr.Error()))
			}
		}
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid invitation"})
	}

	return c.Redirect(signupPath, fiber.StatusFound)
}

// setInvitedEmail writes the address signup will use, or removes it when email is empty.
func (s *Server) setInvitedEmail(c *fiber.Ctx, email string) error {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	if email == "" {
		sess.Delete(sessionInvitedEmail)
	} else {
		sess.Set(sessionInvitedEmail, email)
	}
	return sess.Save()
}
