package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"welcomemat/internal/cache"
	"welcomemat/internal/config"
	"welcomemat/internal/database"
	"welcomemat/internal/mailer"
	"welcomemat/internal/models"
	"welcomemat/internal/repository"
	"welcomemat/internal/service"
	"welcomemat/internal/tokens"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testBaseURL  = "http://welcomemat.test"
	testPassword = "Sup3r-Secret-Pass"
)

var activationPath = regexp.MustCompile(`/activate/invitation/[^/\s]+/[^/\s]+/`)

type testEnv struct {
	cfg    *config.Config
	db     *gorm.DB
	mr     *miniredis.Miniredis
	srv    *Server
	app    *fiber.App
	sender *recordingSender
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "test-secret-that-is-long-enough-123",
		TokenSecret:      "test-token-secret-that-is-long-enough",
		Port:             "0",
		AppBaseURL:       testBaseURL,
		DBDriver:         "sqlite",
		Env:              "test",
		InvitationTTL:    72 * time.Hour,
		PasswordResetTTL: 24 * time.Hour,
		PaginationItems:  20,
		MailProvider:     mailer.ProviderLog,
		MailFrom:         "Welcome Mat <no-reply@welcomemat.test>",
		MailSendTimeout:  time.Second,
		SessionTTL:       30 * time.Minute,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// newTestEnv builds a full server on SQLite. withRedis backs sessions, the token blacklist and
// the profile cache with miniredis.
func newTestEnv(t *testing.T, withRedis bool) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	env := &testEnv{cfg: testConfig(), db: setupTestDB(t), sender: &recordingSender{}}

	var rdb *redis.Client
	if withRedis {
		env.mr = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
	}
	t.Cleanup(func() { cache.SetClient(nil) })

	srv, err := NewServerWithDeps(env.cfg, env.db, rdb)
	require.NoError(t, err)
	env.srv = srv
	env.useSender(env.sender)

	env.app = fiber.New()
	srv.SetupMiddleware(env.app)
	srv.SetupRoutes(env.app)
	return env
}

// useSender swaps the invitation mailer for sender.
func (e *testEnv) useSender(sender mailer.Sender) {
	catalog, err := mailer.DefaultCatalog()
	if err != nil {
		panic(err)
	}
	e.srv.invitationService = service.NewInvitationService(service.InvitationServiceDeps{
		Invitations: e.srv.invitationRepo,
		Users:       e.srv.userRepo,
		Tokens:      tokens.NewGenerator(e.cfg.TokenSecret, tokens.AudienceInvitation, e.cfg.InvitationTTL),
		Sender:      sender,
		Templates:   catalog,
		Notifier:    e.srv.notifier,
		SendTimeout: time.Second,
	})
}

// createUser stores a user with a profile and returns it with a valid access token.
func (e *testEnv) createUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Username: username, Email: username + "@example.com", Password: string(hash)}
	require.NoError(t, repository.NewUserRepository(e.db).CreateWithProfile(t.Context(), u))

	token, err := e.srv.generateToken(u.ID, u.Username)
	require.NoError(t, err)
	return u, token
}

type requestOpt func(*http.Request)

func withToken(token string) requestOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookies(cookies []*http.Cookie) requestOpt {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...requestOpt) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// lastActivationPath returns the activation path from the most recent invitation email.
func (e *testEnv) lastActivationPath(t *testing.T) string {
	t.Helper()
	msg, ok := e.sender.last()
	require.True(t, ok, "no invitation email sent")
	path := activationPath.FindString(msg.plain)
	require.NotEmpty(t, path, "no activation link in %q", msg.plain)
	return path
}

type sentMail struct {
	to, subject, plain string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, subject, plain, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, plain: plain})
	return nil
}

func (s *recordingSender) last() (sentMail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMail{}, false
	}
	return s.sent[len(s.sent)-1], true
}

func (s *recordingSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
