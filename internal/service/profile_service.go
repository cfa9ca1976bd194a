package service

import (
	"context"
	"fmt"
	"strings"

	"welcomemat/internal/authz"
	"welcomemat/internal/models"
	"welcomemat/internal/repository"
	"welcomemat/internal/tokens"
	"welcomemat/internal/validation"
)

// ProfileService serves profile reads and edits to their owners only.
type ProfileService struct {
	profiles    repository.ProfileRepository
	users       repository.UserRepository
	resetTokens *tokens.Generator
}

// NewProfileService returns a new ProfileService. resetTokens mints the password reset link
// shown on the owner's profile.
func NewProfileService(profiles repository.ProfileRepository, users repository.UserRepository, resetTokens *tokens.Generator) *ProfileService {
	return &ProfileService{profiles: profiles, users: users, resetTokens: resetTokens}
}

func (s *ProfileService) Get(ctx context.Context, userID, profileID uint) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !authz.OwnsProfile(userID, p) {
		return nil, models.NewForbiddenError("You do not have access to this profile")
	}
	return p, nil
}

func (s *ProfileService) GetByUser(ctx context.Context, userID uint) (*models.Profile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

func (s *ProfileService) Update(ctx context.Context, userID, profileID uint, bio string) (*models.Profile, error) {
	p, err := s.Get(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}
	bio = strings.TrimSpace(bio)
	if err := validation.ValidateBio(bio); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	p.Bio = bio
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProfileService) Delete(ctx context.Context, userID, profileID uint) error {
	p, err := s.Get(ctx, userID, profileID)
	if err != nil {
		return err
	}
	return s.profiles.Delete(ctx, p)
}

// PasswordResetURL builds a single-use password reset link for the profile owner.
func (s *ProfileService) PasswordResetURL(ctx context.Context, baseURL string, p *models.Profile) (string, error) {
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return "", err
	}
	token, err := s.resetTokens.Make(user)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return fmt.Sprintf("%s/api/auth/password-reset/%s/%s",
		strings.TrimRight(baseURL, "/"), tokens.EncodeUID(user.ID), token), nil
}
