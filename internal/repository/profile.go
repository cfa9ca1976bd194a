package repository

import (
	"context"

	"welcomemat/internal/cache"
	"welcomemat/internal/models"
	"welcomemat/internal/observability"

	"gorm.io/gorm"
)

// ProfileRepository defines persistence operations for profiles. Reads go through the
// profile cache; writes invalidate it.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Profile, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, profile *models.Profile) error
}

type profileRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db, log: observability.NewRepoLogger("profiles")}
}

func (r *profileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	err := cache.Aside(ctx, cache.ProfileKey(id), &profile, cache.ProfileTTL, func() error {
		defer observability.TrackQuery("select", "profiles")()
		if err := readDB(r.db).WithContext(ctx).First(&profile, id).Error; err != nil {
			return notFoundOr(err, "Profile", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	err := cache.Aside(ctx, cache.UserProfileKey(userID), &profile, cache.ProfileTTL, func() error {
		defer observability.TrackQuery("select", "profiles")()
		if err := readDB(r.db).WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			return notFoundOr(err, "Profile for user", userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.Profile) error {
	defer observability.TrackQuery("update", "profiles")()

	if err := r.db.WithContext(ctx).Model(profile).Select("Bio", "UpdatedAt").Updates(profile).Error; err != nil {
		r.log.LogError(ctx, err, "update")
		return models.NewInternalError(err)
	}
	cache.InvalidateProfile(ctx, profile.ID, profile.UserID)
	r.log.LogUpdate(ctx, map[string]any{"profile_id": profile.ID})
	return nil
}

func (r *profileRepository) Delete(ctx context.Context, profile *models.Profile) error {
	defer observability.TrackQuery("delete", "profiles")()

	res := r.db.WithContext(ctx).Delete(&models.Profile{}, profile.ID)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Profile", profile.ID)
	}
	cache.InvalidateProfile(ctx, profile.ID, profile.UserID)
	r.log.LogDelete(ctx, map[string]any{"profile_id": profile.ID})
	return nil
}
