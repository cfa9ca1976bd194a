package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"welcomemat/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationRepository_OwnerScoping(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	other := seedUser(t, db, "other")

	inv := &models.Invitation{UserID: owner.ID, Email: "friend@example.com"}
	require.NoError(t, repo.Create(ctx, inv))
	assert.Equal(t, models.InvitationStatusCreated, inv.Status)

	got, err := repo.GetForUser(ctx, inv.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, got.User)
	assert.Equal(t, owner.Email, got.User.Email)

	_, err = repo.GetForUser(ctx, inv.ID, other.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	got, err = repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
}

func TestInvitationRepository_ListByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "lister")
	other := seedUser(t, db, "bystander")

	var ids []uint
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		inv := &models.Invitation{UserID: owner.ID, Email: email}
		require.NoError(t, repo.Create(ctx, inv))
		ids = append(ids, inv.ID)
	}
	require.NoError(t, repo.Create(ctx, &models.Invitation{UserID: other.ID, Email: "z@example.com"}))

	page, total, err := repo.ListByUser(ctx, owner.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID, "newest first")
	assert.Equal(t, ids[1], page[1].ID)

	page, _, err = repo.ListByUser(ctx, owner.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestInvitationRepository_ExistsPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "pending")

	inv := &models.Invitation{UserID: owner.ID, Email: "x@example.com"}
	require.NoError(t, repo.Create(ctx, inv))

	ok, err := repo.ExistsPending(ctx, owner.ID, "X@Example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	inv.MarkSent(time.Now(), time.Hour)
	require.NoError(t, repo.Transition(ctx, inv, models.InvitationState{Status: models.InvitationStatusCreated}))
	ok, err = repo.MarkActivated(ctx, inv, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ExistsPending(ctx, owner.ID, "x@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvitationRepository_ExpireStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "sweeper")
	now := time.Now().UTC()

	stale := &models.Invitation{UserID: owner.ID, Email: "stale@example.com"}
	stale.MarkSent(now.Add(-80*time.Hour), 72*time.Hour)
	fresh := &models.Invitation{UserID: owner.ID, Email: "fresh@example.com"}
	fresh.MarkSent(now.Add(-time.Hour), 72*time.Hour)
	created := &models.Invitation{UserID: owner.ID, Email: "new@example.com"}
	for _, inv := range []*models.Invitation{stale, fresh, created} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	n, err := repo.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusExpired, got.Status)

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusSent, got.Status)

	got, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusCreated, got.Status)
}

func TestInvitationRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "deleter")

	inv := &models.Invitation{UserID: owner.ID, Email: "gone@example.com"}
	require.NoError(t, repo.Create(ctx, inv))
	require.NoError(t, repo.Delete(ctx, inv.ID))

	err := repo.Delete(ctx, inv.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestInvitationRepository_ExpireStaleSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInvitationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "invitations" SET "status"=$1,"updated_at"=$2 WHERE status = $3 AND expires_at < $4`)).
		WithArgs(string(models.InvitationStatusExpired), sqlmock.AnyArg(), string(models.InvitationStatusSent), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := repo.ExpireStale(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepository_MarkActivatedOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "activator")

	inv := &models.Invitation{UserID: owner.ID, Email: "once@example.com"}
	inv.MarkSent(time.Now(), time.Hour)
	require.NoError(t, repo.Create(ctx, inv))

	ok, err := repo.MarkActivated(ctx, inv, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkActivated(ctx, inv, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second activation must not apply")

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusActivated, got.Status)
	assert.NotNil(t, got.ActivatedAt)
}

func TestInvitationRepository_TransitionRequiresPreviousState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "transitions")

	inv := &models.Invitation{UserID: owner.ID, Email: "race@example.com"}
	require.NoError(t, repo.Create(ctx, inv))

	// Two writers start from the same CREATED row.
	first, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)

	prev := first.State()
	first.MarkSent(time.Now(), time.Hour)
	require.NoError(t, repo.Transition(ctx, first, prev))

	prev = second.State()
	second.ResetEmail("other@example.com")
	err = repo.Transition(ctx, second, prev)
	assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)

	ok, err := repo.MarkActivated(ctx, first, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	// A resend computed from the SENT row must not revive the accepted invitation.
	prev = first.State()
	first.MarkSent(time.Now().Add(time.Minute), time.Hour)
	err = repo.Transition(ctx, first, prev)
	assert.True(t, models.HasCode(err, models.CodeConflict), "got %v", err)

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusActivated, got.Status)
	assert.NotNil(t, got.ActivatedAt)
	assert.Equal(t, "race@example.com", got.Email)
}

func TestInvitationRepository_MarkActivatedRejectsSupersededSend(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "superseded")

	inv := &models.Invitation{UserID: owner.ID, Email: "resent@example.com"}
	inv.MarkSent(time.Now().Add(-time.Minute), time.Hour)
	require.NoError(t, repo.Create(ctx, inv))

	clicked, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)

	prev := inv.State()
	inv.MarkSent(time.Now(), time.Hour)
	require.NoError(t, repo.Transition(ctx, inv, prev))

	ok, err := repo.MarkActivated(ctx, clicked, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "a link from before the resend must not activate")

	ok, err = repo.MarkActivated(ctx, inv, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvitationRepository_Expire(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvitationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "expirer")
	now := time.Now().UTC()

	inv := &models.Invitation{UserID: owner.ID, Email: "late@example.com"}
	inv.MarkSent(now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, repo.Create(ctx, inv))

	// Resent before the expiry write lands.
	prev := inv.State()
	inv.MarkSent(now, time.Hour)
	require.NoError(t, repo.Transition(ctx, inv, prev))

	ok, err := repo.Expire(ctx, inv.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Expire(ctx, inv.ID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusExpired, got.Status)
}
