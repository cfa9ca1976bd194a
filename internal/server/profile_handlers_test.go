package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"welcomemat/internal/cache"
	"welcomemat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMyProfile(t *testing.T) {
	env := newTestEnv(t, false)
	alice, token := env.createUser(t, "alice")

	resp := env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	profile, ok := body["profile"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, alice.ID, profile["user_id"])
	assert.Equal(t, fmt.Sprintf("/api/profiles/%v", profile["id"]), body["url"])
	assert.True(t, strings.HasPrefix(body["password_reset_url"].(string), testBaseURL+"/api/auth/password-reset/"))

	resp = env.do(t, http.MethodGet, "/api/profiles/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileOwnership(t *testing.T) {
	env := newTestEnv(t, false)
	_, aliceToken := env.createUser(t, "alice")
	_, bobToken := env.createUser(t, "bob")

	resp := env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(aliceToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profileURL := decodeBody(t, resp)["url"].(string)

	tests := []struct {
		name   string
		method string
		body   any
	}{
		{"read", http.MethodGet, nil},
		{"update", http.MethodPut, map[string]string{"bio": "hijacked"}},
		{"delete", http.MethodDelete, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, profileURL, tt.body, withToken(bobToken))
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, models.CodeForbidden, decodeBody(t, resp)["code"])
		})
	}

	resp = env.do(t, http.MethodGet, "/api/profiles/999", nil, withToken(bobToken))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/profiles/abc", nil, withToken(bobToken))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid ID", decodeBody(t, resp)["error"])

	resp = env.do(t, http.MethodGet, profileURL, nil, withToken(aliceToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody(t, resp)["profile"].(map[string]any)["bio"])
}

func TestUpdateAndDeleteProfile(t *testing.T) {
	env := newTestEnv(t, true)
	alice, token := env.createUser(t, "alice")

	// Prime the cache so the update has something to invalidate.
	resp := env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profileURL := decodeBody(t, resp)["url"].(string)
	assert.True(t, env.mr.Exists(cache.UserProfileKey(alice.ID)))

	resp = env.do(t, http.MethodPut, profileURL, map[string]string{"bio": "  Gardener and climber.  "}, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Gardener and climber.", decodeBody(t, resp)["bio"])
	assert.False(t, env.mr.Exists(cache.UserProfileKey(alice.ID)))

	resp = env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Gardener and climber.", decodeBody(t, resp)["profile"].(map[string]any)["bio"])

	resp = env.do(t, http.MethodPut, profileURL, map[string]string{"bio": strings.Repeat("é", 501)}, withToken(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeValidation, decodeBody(t, resp)["code"])

	resp = env.do(t, http.MethodPut, profileURL, map[string]string{"bio": strings.Repeat("é", 500)}, withToken(token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, profileURL, nil, withToken(token))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/profiles/me", nil, withToken(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, profileURL, nil, withToken(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
