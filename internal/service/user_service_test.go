package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"welcomemat/internal/models"
	"welcomemat/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Sup3r-Secret-Pass"

func newTestUserService(repo *userRepoStub) *UserService {
	svc := NewUserService(repo, resetGenerator())
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func TestUserService_SignupUsesInvitedEmail(t *testing.T) {
	t.Parallel()

	repo := noopUserRepo()
	var created *models.User
	repo.createWithProfileFn = func(_ context.Context, u *models.User) error {
		u.ID = 11
		u.Profile = &models.Profile{ID: 3, UserID: 11}
		created = u
		return nil
	}
	svc := newTestUserService(repo)

	user, err := svc.Signup(context.Background(), SignupInput{
		Username:     "newbie",
		Email:        "typed@example.com",
		Password:     strongPassword,
		InvitedEmail: "Invited@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "invited@example.com", user.Email)
	require.NotNil(t, created)
	assert.NotEqual(t, strongPassword, created.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte(strongPassword)))
}

func TestUserService_SignupValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   SignupInput
		repo func(*userRepoStub)
		code string
	}{
		{name: "short username", in: SignupInput{Username: "ab", Email: "a@example.com", Password: strongPassword}, code: models.CodeValidation},
		{name: "bad email", in: SignupInput{Username: "alice", Email: "nope", Password: strongPassword}, code: models.CodeValidation},
		{name: "weak password", in: SignupInput{Username: "alice", Email: "a@example.com", Password: "password"}, code: models.CodeValidation},
		{
			name: "email taken",
			in:   SignupInput{Username: "alice", Email: "a@example.com", Password: strongPassword},
			repo: func(r *userRepoStub) {
				r.getByEmailFn = func(context.Context, string) (*models.User, error) { return &models.User{ID: 1}, nil }
			},
			code: models.CodeConflict,
		},
		{
			name: "username taken",
			in:   SignupInput{Username: "alice", Email: "a@example.com", Password: strongPassword},
			repo: func(r *userRepoStub) {
				r.getByUsernameFn = func(context.Context, string) (*models.User, error) { return &models.User{ID: 1}, nil }
			},
			code: models.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopUserRepo()
			if tt.repo != nil {
				tt.repo(repo)
			}
			_, err := newTestUserService(repo).Signup(context.Background(), tt.in)
			assertAppErrorCode(t, err, tt.code)
		})
	}
}

func TestUserService_Login(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte(strongPassword), bcrypt.MinCost)
	require.NoError(t, err)
	repo := noopUserRepo()
	repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if email == "a@example.com" {
			return &models.User{ID: 1, Email: email, Password: string(hash)}, nil
		}
		return nil, nil
	}
	svc := newTestUserService(repo)

	user, err := svc.Login(context.Background(), "a@example.com", strongPassword)
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)

	_, err = svc.Login(context.Background(), "a@example.com", "wrong")
	assertAppErrorCode(t, err, models.CodeUnauthorized)

	_, err = svc.Login(context.Background(), "b@example.com", strongPassword)
	assertAppErrorCode(t, err, models.CodeUnauthorized)
}

func TestUserService_ResetPassword(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: 4, Password: "old-hash", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := noopUserRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		if id != user.ID {
			return nil, models.NewNotFoundError("User", id)
		}
		cp := *user
		return &cp, nil
	}
	repo.updateFn = func(_ context.Context, u *models.User) error {
		u.UpdatedAt = u.UpdatedAt.Add(time.Second)
		*user = *u
		return nil
	}
	svc := newTestUserService(repo)

	token, err := resetGenerator().Make(user)
	require.NoError(t, err)
	uid := tokens.EncodeUID(user.ID)

	assert.True(t, IsInvalidLink(svc.ResetPassword(context.Background(), uid, token+"x", strongPassword)))
	assert.True(t, IsInvalidLink(svc.ResetPassword(context.Background(), "!!", token, strongPassword)))
	assert.True(t, IsInvalidLink(svc.ResetPassword(context.Background(), tokens.EncodeUID(99), token, strongPassword)))

	err = svc.ResetPassword(context.Background(), uid, token, "weak")
	assertAppErrorCode(t, err, models.CodeValidation)

	require.NoError(t, svc.ResetPassword(context.Background(), uid, token, strongPassword))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(strongPassword)))

	err = svc.ResetPassword(context.Background(), uid, token, strongPassword+"!")
	assert.True(t, IsInvalidLink(err), "reset links are single-use, got %v", err)
	assert.False(t, strings.Contains(user.Password, strongPassword))
}
