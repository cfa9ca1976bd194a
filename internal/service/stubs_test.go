package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"welcomemat/internal/models"

	"github.com/stretchr/testify/require"
)

type userRepoStub struct {
	getByIDFn           func(context.Context, uint) (*models.User, error)
	getByEmailFn        func(context.Context, string) (*models.User, error)
	getByUsernameFn     func(context.Context, string) (*models.User, error)
	createFn            func(context.Context, *models.User) error
	createWithProfileFn func(context.Context, *models.User) error
	updateFn            func(context.Context, *models.User) error
	deleteFn            func(context.Context, uint) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) CreateWithProfile(ctx context.Context, user *models.User) error {
	return s.createWithProfileFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:           func(_ context.Context, id uint) (*models.User, error) { return &models.User{ID: id}, nil },
		getByEmailFn:        func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn:     func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:            func(context.Context, *models.User) error { return nil },
		createWithProfileFn: func(context.Context, *models.User) error { return nil },
		updateFn:            func(context.Context, *models.User) error { return nil },
		deleteFn:            func(context.Context, uint) error { return nil },
	}
}

type profileRepoStub struct {
	getByIDFn     func(context.Context, uint) (*models.Profile, error)
	getByUserIDFn func(context.Context, uint) (*models.Profile, error)
	updateFn      func(context.Context, *models.Profile) error
	deleteFn      func(context.Context, *models.Profile) error
}

func (s *profileRepoStub) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	return s.getByIDFn(ctx, id)
}
func (s *profileRepoStub) GetByUserID(ctx context.Context, userID uint) (*models.Profile, error) {
	return s.getByUserIDFn(ctx, userID)
}
func (s *profileRepoStub) Update(ctx context.Context, p *models.Profile) error {
	return s.updateFn(ctx, p)
}
func (s *profileRepoStub) Delete(ctx context.Context, p *models.Profile) error {
	return s.deleteFn(ctx, p)
}

func noopProfileRepo() *profileRepoStub {
	return &profileRepoStub{
		getByIDFn:     func(_ context.Context, id uint) (*models.Profile, error) { return &models.Profile{ID: id}, nil },
		getByUserIDFn: func(_ context.Context, uid uint) (*models.Profile, error) { return &models.Profile{UserID: uid}, nil },
		updateFn:      func(context.Context, *models.Profile) error { return nil },
		deleteFn:      func(context.Context, *models.Profile) error { return nil },
	}
}

type invitationRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.Invitation, error)
	getForUserFn    func(context.Context, uint, uint) (*models.Invitation, error)
	listByUserFn    func(context.Context, uint, int, int) ([]models.Invitation, int64, error)
	existsPendingFn func(context.Context, uint, string) (bool, error)
	createFn        func(context.Context, *models.Invitation) error
	transitionFn    func(context.Context, *models.Invitation, models.InvitationState) error
	deleteFn        func(context.Context, uint) error
	markActivatedFn func(context.Context, *models.Invitation, time.Time) (bool, error)
	expireFn        func(context.Context, uint, time.Time) (bool, error)
	expireStaleFn   func(context.Context, time.Time) (int64, error)
}

func (s *invitationRepoStub) GetByID(ctx context.Context, id uint) (*models.Invitation, error) {
	return s.getByIDFn(ctx, id)
}
func (s *invitationRepoStub) GetForUser(ctx context.Context, id, userID uint) (*models.Invitation, error) {
	return s.getForUserFn(ctx, id, userID)
}
func (s *invitationRepoStub) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Invitation, int64, error) {
	return s.listByUserFn(ctx, userID, limit, offset)
}
func (s *invitationRepoStub) ExistsPending(ctx context.Context, userID uint, email string) (bool, error) {
	return s.existsPendingFn(ctx, userID, email)
}
func (s *invitationRepoStub) Create(ctx context.Context, inv *models.Invitation) error {
	return s.createFn(ctx, inv)
}
func (s *invitationRepoStub) Transition(ctx context.Context, inv *models.Invitation, prev models.InvitationState) error {
	return s.transitionFn(ctx, inv, prev)
}
func (s *invitationRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *invitationRepoStub) MarkActivated(ctx context.Context, inv *models.Invitation, at time.Time) (bool, error) {
	return s.markActivatedFn(ctx, inv, at)
}
func (s *invitationRepoStub) Expire(ctx context.Context, id uint, now time.Time) (bool, error) {
	return s.expireFn(ctx, id, now)
}
func (s *invitationRepoStub) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return s.expireStaleFn(ctx, now)
}

// memInvitationRepo backs an invitationRepoStub with a map so lifecycle tests can observe
// what was persisted.
func memInvitationRepo() (*invitationRepoStub, map[uint]*models.Invitation) {
	var mu sync.Mutex
	rows := map[uint]*models.Invitation{}
	var nextID uint

	load := func(id uint) (*models.Invitation, error) {
		mu.Lock()
		defer mu.Unlock()
		row, ok := rows[id]
		if !ok {
			return nil, models.NewNotFoundError("Invitation", id)
		}
		cp := *row
		return &cp, nil
	}

	stub := &invitationRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.Invitation, error) { return load(id) },
		getForUserFn: func(_ context.Context, id, userID uint) (*models.Invitation, error) {
			inv, err := load(id)
			if err != nil {
				return nil, err
			}
			if inv.UserID != userID {
				return nil, models.NewNotFoundError("Invitation", id)
			}
			return inv, nil
		},
		listByUserFn: func(context.Context, uint, int, int) ([]models.Invitation, int64, error) { return nil, 0, nil },
		existsPendingFn: func(_ context.Context, userID uint, email string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, r := range rows {
				if r.UserID == userID && r.Email == email && r.Status != models.InvitationStatusActivated {
					return true, nil
				}
			}
			return false, nil
		},
		createFn: func(_ context.Context, inv *models.Invitation) error {
			mu.Lock()
			defer mu.Unlock()
			nextID++
			inv.ID = nextID
			inv.CreatedAt = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
			cp := *inv
			rows[inv.ID] = &cp
			return nil
		},
		transitionFn: func(_ context.Context, inv *models.Invitation, prev models.InvitationState) error {
			mu.Lock()
			defer mu.Unlock()
			row, ok := rows[inv.ID]
			if !ok || !inState(row, prev) {
				return models.NewConflictError("Invitation was changed by another request")
			}
			cp := *inv
			cp.User = nil
			rows[inv.ID] = &cp
			return nil
		},
		deleteFn: func(_ context.Context, id uint) error {
			mu.Lock()
			defer mu.Unlock()
			delete(rows, id)
			return nil
		},
		markActivatedFn: func(_ context.Context, inv *models.Invitation, at time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			row, ok := rows[inv.ID]
			sent := models.InvitationState{Status: models.InvitationStatusSent, SentAt: inv.SentAt}
			if !ok || inv.SentAt == nil || !inState(row, sent) {
				return false, nil
			}
			row.Status = models.InvitationStatusActivated
			row.ActivatedAt = &at
			return true, nil
		},
		expireFn: func(_ context.Context, id uint, now time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			row, ok := rows[id]
			if !ok || row.Status != models.InvitationStatusSent || row.ExpiresAt == nil || !row.ExpiresAt.Before(now) {
				return false, nil
			}
			row.Status = models.InvitationStatusExpired
			return true, nil
		},
		expireStaleFn: func(context.Context, time.Time) (int64, error) { return 0, nil },
	}
	return stub, rows
}

func inState(row *models.Invitation, st models.InvitationState) bool {
	if row.Status != st.Status {
		return false
	}
	if row.SentAt == nil || st.SentAt == nil {
		return row.SentAt == nil && st.SentAt == nil
	}
	return row.SentAt.Equal(*st.SentAt)
}

type sentMail struct {
	to, subject, plain, html string
}

type senderStub struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *senderStub) Send(_ context.Context, to, subject, plain, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to, subject, plain, html})
	return nil
}

type notifierStub struct {
	calls []uint
	err   error
}

func (n *notifierStub) InvitationActivated(_ context.Context, _, invitationID uint, _ string) error {
	n.calls = append(n.calls, invitationID)
	return n.err
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected *models.AppError, got %#v", err)
	require.Equal(t, code, appErr.Code)
}
