package repository

import (
	"context"
	"time"

	"welcomemat/internal/models"
	"welcomemat/internal/observability"

	"gorm.io/gorm"
)

// InvitationRepository defines persistence operations for invitations.
type InvitationRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Invitation, error)
	// GetForUser loads an invitation only when userID issued it.
	GetForUser(ctx context.Context, id, userID uint) (*models.Invitation, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Invitation, int64, error)
	// ExistsPending reports whether userID already has a non-activated invitation for email.
	ExistsPending(ctx context.Context, userID uint, email string) (bool, error)
	Create(ctx context.Context, inv *models.Invitation) error
	// Transition writes inv's address and lifecycle fields only while the stored row is still
	// in state prev. A row changed by someone else in the meantime yields a conflict error.
	Transition(ctx context.Context, inv *models.Invitation, prev models.InvitationState) error
	Delete(ctx context.Context, id uint) error
	// MarkActivated flips inv to ACTIVATED provided the row is still SENT with inv's send time.
	// It reports false otherwise, so a link succeeds at most once and never after a resend.
	MarkActivated(ctx context.Context, inv *models.Invitation, at time.Time) (bool, error)
	// Expire moves one SENT invitation to EXPIRED if its expiry is before now.
	Expire(ctx context.Context, id uint, now time.Time) (bool, error)
	// ExpireStale moves every SENT invitation whose expiry is before now to EXPIRED.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type invitationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db, log: observability.NewRepoLogger("invitations")}
}

func (r *invitationRepository) GetByID(ctx context.Context, id uint) (*models.Invitation, error) {
	defer observability.TrackQuery("select", "invitations")()

	var inv models.Invitation
	if err := r.db.WithContext(ctx).Preload("User").First(&inv, id).Error; err != nil {
		return nil, notFoundOr(err, "Invitation", id)
	}
	return &inv, nil
}

func (r *invitationRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Invitation, error) {
	defer observability.TrackQuery("select", "invitations")()

	var inv models.Invitation
	if err := readDB(r.db).WithContext(ctx).
		Preload("User").
		Where("user_id = ?", userID).
		First(&inv, id).Error; err != nil {
		return nil, notFoundOr(err, "Invitation", id)
	}
	return &inv, nil
}

func (r *invitationRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Invitation, int64, error) {
	defer observability.TrackQuery("select", "invitations")()

	db := readDB(r.db).WithContext(ctx)

	var total int64
	if err := db.Model(&models.Invitation{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var invitations []models.Invitation
	if err := db.Preload("User").
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&invitations).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return invitations, total, nil
}

func (r *invitationRepository) ExistsPending(ctx context.Context, userID uint, email string) (bool, error) {
	defer observability.TrackQuery("select", "invitations")()

	var count int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Invitation{}).
		Where("user_id = ? AND email = ? AND status <> ?", userID, models.NormalizeEmail(email), models.InvitationStatusActivated).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	defer observability.TrackQuery("insert", "invitations")()

	if inv.Status == "" {
		inv.Status = models.InvitationStatusCreated
	}
	if err := r.db.WithContext(ctx).Omit("User").Create(inv).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]any{"invitation_id": inv.ID, "user_id": inv.UserID})
	return nil
}

// whereState narrows an update to the row with the given id while it is still in st.
func whereState(db *gorm.DB, id uint, st models.InvitationState) *gorm.DB {
	db = db.Where("id = ? AND status = ?", id, st.Status)
	if st.SentAt == nil {
		return db.Where("sent_at IS NULL")
	}
	return db.Where("sent_at = ?", st.SentAt.UTC())
}

func (r *invitationRepository) Transition(ctx context.Context, inv *models.Invitation, prev models.InvitationState) error {
	defer observability.TrackQuery("update", "invitations")()

	now := time.Now().UTC()
	res := whereState(r.db.WithContext(ctx).Model(&models.Invitation{}), inv.ID, prev).
		Updates(map[string]any{
			"email":        inv.Email,
			"status":       inv.Status,
			"sent_at":      inv.SentAt,
			"expires_at":   inv.ExpiresAt,
			"activated_at": inv.ActivatedAt,
			"updated_at":   now,
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError("Invitation was changed by another request")
	}
	inv.UpdatedAt = now
	r.log.LogUpdate(ctx, map[string]any{"invitation_id": inv.ID, "status": string(inv.Status)})
	return nil
}

func (r *invitationRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "invitations")()

	res := r.db.WithContext(ctx).Delete(&models.Invitation{}, id)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Invitation", id)
	}
	r.log.LogDelete(ctx, map[string]any{"invitation_id": id})
	return nil
}

func (r *invitationRepository) MarkActivated(ctx context.Context, inv *models.Invitation, at time.Time) (bool, error) {
	defer observability.TrackQuery("update", "invitations")()

	if inv.SentAt == nil {
		return false, nil
	}
	sent := models.InvitationState{Status: models.InvitationStatusSent, SentAt: inv.SentAt}
	res := whereState(r.db.WithContext(ctx).Model(&models.Invitation{}), inv.ID, sent).
		Updates(map[string]any{
			"status":       models.InvitationStatusActivated,
			"activated_at": at.UTC(),
			"updated_at":   at.UTC(),
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "activate")
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.log.LogUpdate(ctx, map[string]any{"invitation_id": inv.ID, "status": string(models.InvitationStatusActivated)})
	return true, nil
}

func (r *invitationRepository) Expire(ctx context.Context, id uint, now time.Time) (bool, error) {
	defer observability.TrackQuery("update", "invitations")()

	res := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ? AND expires_at < ?", id, models.InvitationStatusSent, now.UTC()).
		Updates(map[string]any{
			"status":     models.InvitationStatusExpired,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "expire")
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *invitationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	defer observability.TrackQuery("update", "invitations")()

	res := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at < ?", models.InvitationStatusSent, now.UTC()).
		Updates(map[string]any{
			"status":     models.InvitationStatusExpired,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "expire")
		return 0, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		r.log.LogUpdate(ctx, map[string]any{"expired": res.RowsAffected})
	}
	return res.RowsAffected, nil
}
