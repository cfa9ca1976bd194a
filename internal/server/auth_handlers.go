package server

import (
	"errors"
	"log/slog"

	"welcomemat/internal/cache"
	"welcomemat/internal/middleware"
	"welcomemat/internal/models"
	"welcomemat/internal/service"
	"welcomemat/internal/tokens"

	"github.com/gofiber/fiber/v2"
)

// sessionInvitedEmail is the session key an accepted invitation leaves for signup.
const sessionInvitedEmail = "email"

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account. After following an invitation link the invited email is taken from the session and the submitted email is ignored.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Signup request"
// @Success 201 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	invited := s.invitedEmail(c)
	if req.Username == "" || req.Password == "" || (req.Email == "" && invited == "") {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username, email, and password are required"))
	}

	user, err := s.userService.Signup(c.UserContext(), service.SignupInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		InvitedEmail: invited,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	if invited != "" {
		s.clearInvitedEmail(c)
	}

	token, err := s.generateToken(user.ID, user.Username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.Login(c.UserContext(), models.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}

	token, err := s.generateToken(user.ID, user.Username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout handles POST /api/auth/logout
// @Summary User logout
// @Description Revoke the access token used for this request
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.revokeCurrentToken(c); err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Logout is temporarily unavailable",
			})
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// ResetPassword handles POST /api/auth/password-reset/:uidb64/:token
// @Summary Reset password
// @Description Set a new password using the single-use link shown on the owner's profile
// @Tags auth
// @Accept json
// @Produce json
// @Param uidb64 path string true "Encoded user ID"
// @Param token path string true "Reset token"
// @Param request body object{password=string} true "New password"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/password-reset/{uidb64}/{token} [post]
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	err := s.userService.ResetPassword(c.UserContext(), c.Params("uidb64"), c.Params("token"), req.Password)
	switch {
	case errors.Is(err, tokens.ErrInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid link"})
	case err != nil:
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}

// revokeCurrentToken blacklists the access token AuthRequired accepted for this request.
func (s *Server) revokeCurrentToken(c *fiber.Ctx) error {
	jti, _ := c.Locals("jti").(string)
	if jti == "" {
		return nil
	}
	return cache.RevokeToken(c.UserContext(), jti, tokenTTL(c))
}

// invitedEmail returns the address left in the session by a successful activation.
func (s *Server) invitedEmail(c *fiber.Ctx) string {
	if s.sessions == nil {
		return ""
	}
	sess, err := s.sessions.Get(c)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "session unavailable", slog.String("error", err.Error()))
		return ""
	}
	email, _ := sess.Get(sessionInvitedEmail).(string)
	return email
}

func (s *Server) clearInvitedEmail(c *fiber.Ctx) {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return
	}
	sess.Delete(sessionInvitedEmail)
	if err := sess.Save(); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "failed to clear invited email", slog.String("error", err.Error()))
	}
}
