package service

import (
	"context"
	"errors"
	"strings"

	"welcomemat/internal/models"
	"welcomemat/internal/repository"
	"welcomemat/internal/tokens"
	"welcomemat/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// UserService handles accounts: signup, login and password reset.
type UserService struct {
	userRepo    repository.UserRepository
	resetTokens *tokens.Generator
	bcryptCost  int
}

// SignupInput carries a signup request. InvitedEmail, when set, is the address an accepted
// invitation left in the session and takes precedence over Email.
type SignupInput struct {
	Username     string
	Email        string
	Password     string
	InvitedEmail string
}

func NewUserService(userRepo repository.UserRepository, resetTokens *tokens.Generator) *UserService {
	return &UserService{userRepo: userRepo, resetTokens: resetTokens, bcryptCost: bcrypt.DefaultCost}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Signup validates the input and creates the user together with an empty profile.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := models.NormalizeEmail(in.Email)
	if in.InvitedEmail != "" {
		email = models.NormalizeEmail(in.InvitedEmail)
	}

	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User with this email already exists")
	}
	existing, err = s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User with this username already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hashed),
	}
	if err := s.userRepo.CreateWithProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return user, nil
}

// ResetPassword sets a new password when uidb64 and token form a valid reset link. Bad links
// report tokens.ErrInvalid. Changing the password invalidates the link.
func (s *UserService) ResetPassword(ctx context.Context, uidb64, token, newPassword string) error {
	id, err := tokens.DecodeUID(uidb64)
	if err != nil {
		return tokens.ErrInvalid
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return tokens.ErrInvalid
		}
		return err
	}
	if !s.resetTokens.Check(user, token) {
		return tokens.ErrInvalid
	}

	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	user.Password = string(hashed)
	return s.userRepo.Update(ctx, user)
}

// IsInvalidLink reports whether err is the uniform bad-link result.
func IsInvalidLink(err error) bool {
	return errors.Is(err, tokens.ErrInvalid)
}
