// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	_ "welcomemat/docs" // swagger docs
	"welcomemat/internal/cache"
	"welcomemat/internal/config"
	"welcomemat/internal/database"
	"welcomemat/internal/mailer"
	"welcomemat/internal/middleware"
	"welcomemat/internal/models"
	"welcomemat/internal/notifications"
	"welcomemat/internal/repository"
	"welcomemat/internal/service"
	"welcomemat/internal/tokens"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	tokenIssuer   = "welcomemat-api"
	tokenAudience = "welcomemat-client"
	serviceName   = "welcomemat-api"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config            *config.Config
	db                *gorm.DB
	redis             *redis.Client
	app               *fiber.App
	promMiddleware    *fiberprometheus.FiberPrometheus
	sessions          *session.Store
	shutdownCtx       context.Context
	shutdownFn        context.CancelFunc
	userRepo          repository.UserRepository
	profileRepo       repository.ProfileRepository
	invitationRepo    repository.InvitationRepository
	notifier          *notifications.Notifier
	userService       *service.UserService
	profileService    *service.ProfileService
	invitationService *service.InvitationService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Initialize Redis (nil when unreachable)
	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	// Package-level cache helpers (profile cache, token blacklist) follow the server's client.
	cache.SetClient(redisClient)

	sender, err := mailer.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("mailer setup failed: %w", err)
	}
	templates, err := mailer.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("mail templates: %w", err)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(serviceName),
		sessions:       newSessionStore(cfg, redisClient),
		userRepo:       repository.NewUserRepository(db),
		profileRepo:    repository.NewProfileRepository(db),
		invitationRepo: repository.NewInvitationRepository(db),
		notifier:       notifications.NewNotifier(redisClient),
	}

	invitationTokens := tokens.NewGenerator(cfg.TokenSecret, tokens.AudienceInvitation, cfg.InvitationTTL)
	resetTokens := tokens.NewGenerator(cfg.TokenSecret, tokens.AudiencePasswordReset, cfg.PasswordResetTTL)

	server.userService = service.NewUserService(server.userRepo, resetTokens)
	server.profileService = service.NewProfileService(server.profileRepo, server.userRepo, resetTokens)
	server.invitationService = service.NewInvitationService(service.InvitationServiceDeps{
		Invitations: server.invitationRepo,
		Users:       server.userRepo,
		Tokens:      invitationTokens,
		Sender:      sender,
		Templates:   templates,
		Notifier:    server.notifier,
		SendTimeout: cfg.MailSendTimeout,
	})

	return server, nil
}

// newSessionStore keeps request sessions in Redis when available, in memory otherwise.
func newSessionStore(cfg *config.Config, redisClient *redis.Client) *session.Store {
	sc := session.Config{
		Expiration:     cfg.SessionTTL,
		KeyLookup:      "cookie:welcomemat_session",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.IsProduction(),
		CookieSameSite: "Lax",
	}
	if sc.Expiration <= 0 {
		sc.Expiration = 30 * time.Minute
	}
	if redisClient != nil {
		sc.Storage = cache.NewSessionStorage(redisClient)
	}
	return session.New(sc)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Server span; must run before ContextMiddleware so the trace ID reaches the logs
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected browser requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Location, X-Trace-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application. Routes that other handlers link
// to are named <resource>-<action> and resolved with RouteURL.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Welcome Mat Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Invitation links are opened from email clients, outside the API prefix.
	app.Get("/activate/invitation/:uidb64/:token", middleware.RateLimit(
		s.redis, 20, 10*time.Minute, "activate_invitation"), s.ActivateInvitation).Name("invitation-activate")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup).Name("auth-signup")
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login).Name("auth-login")
	auth.Post("/logout", s.AuthRequired(), s.Logout).Name("auth-logout")
	auth.Post("/password-reset/:uidb64/:token", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "password_reset"), s.ResetPassword).Name("auth-password-reset")

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	profiles := protected.Group("/profiles")
	// /me before the generic /:id route
	profiles.Get("/me", s.GetMyProfile).Name("profile-me")
	profiles.Get("/:id", s.GetProfile).Name("profile-detail")
	profiles.Put("/:id", s.UpdateProfile).Name("profile-update")
	profiles.Delete("/:id", s.DeleteProfile).Name("profile-delete")

	invitations := protected.Group("/invitations")
	invitations.Get("/", s.ListInvitations).Name("invitation-list")
	invitations.Post("/", middleware.RateLimit(
		s.redis, 10, time.Hour, "create_invitation"), s.CreateInvitation).Name("invitation-create")
	invitations.Post("/:id/send", middleware.RateLimit(
		s.redis, 10, time.Hour, "send_invitation"), s.SendInvitation).Name("invitation-send")
	invitations.Get("/:id", s.GetInvitation).Name("invitation-detail")
	invitations.Put("/:id", s.UpdateInvitation).Name("invitation-update")
	invitations.Delete("/:id", s.DeleteInvitation).Name("invitation-delete")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.config, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Sessions and token revocation need Redis in a real deployment.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired rejects requests without a valid, unrevoked bearer token and records the
// caller in the request locals and user context.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		tok, err := s.parseAccessToken(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}
		if cache.IsTokenRevoked(c.UserContext(), tok.ID) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		c.Locals("userID", tok.UserID)
		c.Locals("jti", tok.ID)
		c.Locals("tokenExpiresAt", tok.ExpiresAt)
		// Sync to UserContext for logging and downstream services
		c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, tok.UserID))

		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Welcome Mat API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	go s.runInvitationSweeper(s.shutdownCtx, s.config.InvitationSweepInterval)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the sweeper
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
