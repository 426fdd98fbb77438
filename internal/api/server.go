// Package api exposes the HTTP surface: account and session endpoints,
// the medicine/schedule/history records API, and the derived reports.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/auth"
	"github.com/mvdwal/meditrack/internal/config"
	"github.com/mvdwal/meditrack/internal/mail"
	"github.com/mvdwal/meditrack/internal/refdata"
	"github.com/mvdwal/meditrack/internal/storage"
)

const (
	passwordResetTTL = 30 * time.Minute
	verificationTTL  = 24 * time.Hour
)

// Server handles the HTTP API.
type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *storage.Store
	catalog  *refdata.Catalog
	mailer   mail.Mailer
	issuer   *auth.TokenIssuer
	throttle *loginThrottle
	logger   *zap.Logger
}

// New creates a new API server. catalog may be nil when the reference
// database is not configured; the search endpoint then returns 503.
func New(cfg *config.Config, store *storage.Store, catalog *refdata.Catalog, mailer mail.Mailer, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "meditrackd",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:      app,
		config:   cfg,
		store:    store,
		catalog:  catalog,
		mailer:   mailer,
		issuer:   auth.NewTokenIssuer(cfg.Security.JWTSecret, time.Duration(cfg.Security.TokenTTLHours)*time.Hour),
		throttle: newLoginThrottle(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.metricsMiddleware())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/register", s.handleRegister)
	api.Post("/auth/login", s.throttle.middleware(), s.handleLogin)
	api.Post("/auth/verify", s.handleVerifyEmail)
	api.Post("/auth/password-reset/request", s.handlePasswordResetRequest)
	api.Post("/auth/password-reset/confirm", s.handlePasswordResetConfirm)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	protected.Get("/profile", s.handleGetProfile)
	protected.Put("/profile", s.handleUpdateProfile)
	protected.Put("/profile/password", s.handleChangePassword)
	protected.Delete("/profile", s.handleDeleteAccount)

	protected.Get("/medicines", s.handleListMedicines)
	protected.Post("/medicines", s.handleCreateMedicine)
	protected.Get("/medicines/:id", s.handleGetMedicine)
	protected.Put("/medicines/:id", s.handleUpdateMedicine)
	protected.Delete("/medicines/:id", s.handleDeleteMedicine)
	protected.Post("/medicines/:id/stock", s.handleAddStock)

	protected.Get("/schedules", s.handleListSchedules)
	protected.Post("/schedules", s.handleCreateSchedule)
	protected.Get("/schedules/:id", s.handleGetSchedule)
	protected.Put("/schedules/:id", s.handleUpdateSchedule)
	protected.Delete("/schedules/:id", s.handleDeleteSchedule)

	protected.Get("/history", s.handleListHistory)
	protected.Post("/history", s.handleRecordDose)
	protected.Delete("/history/:id", s.handleDeleteDose)

	protected.Get("/reports/daily", s.handleDailySchedule)
	protected.Get("/reports/adherence", s.handleWeeklyAdherence)
	protected.Get("/reports/expiry", s.handleMedicineExpiry)

	protected.Get("/refdata/search", s.handleRefDataSearch)
}

// Start starts the server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
