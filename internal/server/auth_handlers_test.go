package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"welcomemat/internal/cache"
	"welcomemat/internal/config"
	"welcomemat/internal/models"
	"welcomemat/internal/service"
	"welcomemat/internal/tokens"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a mock of the UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) CreateWithProfile(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestSignup(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)

	s := &Server{
		config:      &config.Config{JWTSecret: "test_secret"},
		userService: service.NewUserService(mockRepo, tokens.NewGenerator("reset", tokens.AudiencePasswordReset, time.Hour)),
	}

	app.Post("/signup", s.Signup)

	tests := []struct {
		name           string
		body           map[string]string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name: "Success",
			body: map[string]string{
				"username": "testuser",
				"email":    "test@example.com",
				"password": "Password123!x",
			},
			mockSetup: func() {
				mockRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(nil, nil)
				mockRepo.On("GetByUsername", mock.Anything, "testuser").Return(nil, nil)
				mockRepo.On("CreateWithProfile", mock.Anything, mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Duplicate User",
			body: map[string]string{
				"username": "testuser",
				"email":    "exists@example.com",
				"password": "Password123!x",
			},
			mockSetup: func() {
				mockRepo.On("GetByEmail", mock.Anything, "exists@example.com").Return(&models.User{ID: 1}, nil)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "Weak Password",
			body: map[string]string{
				"username": "testuser",
				"email":    "weak@example.com",
				"password": "password",
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing Fields",
			body:           map[string]string{"username": "testuser"},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, _ := app.Test(req)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
	mockRepo.AssertNotCalled(t, "CreateWithProfile", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "exists@example.com"
	}))
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, false)
	env.createUser(t, "alice")

	tests := []struct {
		name     string
		email    string
		password string
		status   int
	}{
		{"valid", "alice@example.com", testPassword, http.StatusOK},
		{"email is case insensitive", "Alice@Example.com", testPassword, http.StatusOK},
		{"wrong password", "alice@example.com", "Wrong-Passw0rd!", http.StatusUnauthorized},
		{"unknown user", "bob@example.com", testPassword, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": tt.email, "password": tt.password})
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				body := decodeBody(t, resp)
				assert.NotEmpty(t, body["token"])
				assert.NotContains(t, body["user"], "password")
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)
	_, token := env.createUser(t, "alice")

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "1",
			"iss": tokenIssuer,
			"aud": tokenAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
			"jti": "test-jti",
		}
	}

	wrongIssuer := valid()
	wrongIssuer["iss"] = "someone-else"
	wrongAudience := valid()
	wrongAudience["aud"] = "someone-else"
	expired := valid()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	badSubject := valid()
	badSubject["sub"] = "abc"
	noExpiry := valid()
	delete(noExpiry, "exp")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, valid()).SignedString([]byte(env.cfg.JWTSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + token, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(valid(), "another-secret"), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + sign(wrongIssuer, env.cfg.JWTSecret), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + sign(wrongAudience, env.cfg.JWTSecret), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(expired, env.cfg.JWTSecret), http.StatusUnauthorized},
		{"bad subject", "Bearer " + sign(badSubject, env.cfg.JWTSecret), http.StatusUnauthorized},
		{"no expiry", "Bearer " + sign(noExpiry, env.cfg.JWTSecret), http.StatusUnauthorized},
		{"alg none", "Bearer " + unsigned, http.StatusUnauthorized},
		{"other algorithm", "Bearer " + otherAlg, http.StatusUnauthorized},
		{"signed claims from this server", "Bearer " + sign(valid(), env.cfg.JWTSecret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/invitations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := env.app.Test(req, -1)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if !tt.ok {
				assert.ErrorIs(t, err, errNoBearer)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogout(t *testing.T) {
	t.Run("revokes the token", func(t *testing.T) {
		env := newTestEnv(t, true)
		_, token := env.createUser(t, "alice")

		resp := env.do(t, http.MethodPost, "/api/auth/logout", nil, withToken(token))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		keys := env.mr.Keys()
		var blacklisted bool
		for _, k := range keys {
			if strings.HasPrefix(k, cache.BlacklistKey("")) {
				blacklisted = true
				assert.Greater(t, env.mr.TTL(k), 6*24*time.Hour)
			}
		}
		assert.True(t, blacklisted)
	})

	t.Run("needs redis", func(t *testing.T) {
		env := newTestEnv(t, false)
		_, token := env.createUser(t, "alice")

		resp := env.do(t, http.MethodPost, "/api/auth/logout", nil, withToken(token))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t, false)
	_, token := env.createUser(t, "alice")

	resp := env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resetURL, _ := decodeBody(t, resp)["password_reset_url"].(string)
	require.True(t, strings.HasPrefix(resetURL, testBaseURL+"/api/auth/password-reset/"), resetURL)
	path := strings.TrimPrefix(resetURL, testBaseURL)

	resp = env.do(t, http.MethodPost, path, map[string]string{"password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeValidation, decodeBody(t, resp)["code"])

	resp = env.do(t, http.MethodPost, path, map[string]string{"password": "N3w-Secret-Passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, map[string]string{"password": "An0ther-Secret-Pass"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid link", decodeBody(t, resp)["error"])

	resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "alice@example.com", "password": "N3w-Secret-Passw0rd"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/auth/password-reset/!!!/x", map[string]string{"password": "N3w-Secret-Passw0rd"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid link", decodeBody(t, resp)["error"])
}
