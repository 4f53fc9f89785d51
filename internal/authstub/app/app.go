package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/scamwatch/portal/internal/authstub/http"
	"github.com/scamwatch/portal/internal/authstub/service"
	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/scamwatch/portal/pkg/cryptox"
	"github.com/scamwatch/portal/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the stub auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db *store.Store

	authService         *service.AuthService
	tokenService        *service.TokenService
	passwordService     *service.PasswordService
	activityService     *service.ActivityService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authstub",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		db: store.New(),
	}

	// Ephemeral secret is fine here: the store is in memory too, so nothing
	// outlives the process either way
	if app.cfg.TokenSecret == "" {
		app.cfg.TokenSecret = cryptox.MustGenerateToken(cryptox.TokenSize256)
		app.logger.Info("no AUTH_TOKEN_SECRET set, generated an ephemeral signing secret")
	}

	app.initServices()
	app.initHTTP()

	if cfg.SeedDemoUsers {
		if err := app.seedDemoUsers(); err != nil {
			return nil, fmt.Errorf("failed to seed demo users: %w", err)
		}
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authstub starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authstub...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	app.logger.Info("authstub stopped")
	return nil
}

// Handler exposes the configured router, used by in-process tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:            app.db,
		LockoutThreshold: app.cfg.LockoutThreshold,
		LockoutDuration:  app.cfg.LockoutDuration,
	}
	app.tokenService = &service.TokenService{
		Store:      app.db,
		Secret:     []byte(app.cfg.TokenSecret),
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}
	app.passwordService = &service.PasswordService{
		Store:  app.db,
		Logger: app.logger,
	}
	app.activityService = &service.ActivityService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger)

	router.AuthService = app.authService
	router.TokenService = app.tokenService
	router.PasswordService = app.passwordService
	router.ActivityService = app.activityService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// seedDemoUsers creates a couple of known accounts so the portal front end
// has something to log into. Passwords are generated and logged rather than
// hard-coded.
func (app *Application) seedDemoUsers() error {
	ctx := context.Background()

	seeds := []struct {
		email      string
		fullName   string
		role       string
		perms      []string
		department string
	}{
		{"citizen@scamwatch.dev", "Demo Citizen", "user", []string{"read"}, ""},
		{"moderator@scamwatch.dev", "Demo Moderator", "moderator", []string{"read", "write", "delete", "moderate"}, "triage"},
		{"admin@scamwatch.dev", "Demo Admin", "admin", []string{"read", "write", "delete", "moderate", "admin"}, "operations"},
	}

	for _, seed := range seeds {
		password, err := cryptox.GeneratePassword()
		if err != nil {
			return err
		}

		user, err := app.authService.Signup(ctx, seed.email, password, seed.fullName)
		if err != nil {
			return err
		}

		user.Role = seed.role
		user.Permissions = seed.perms
		user.Department = seed.department
		user.EmailVerified = true
		if err := app.db.UpdateUser(ctx, user); err != nil {
			return err
		}

		app.logger.Info("seeded demo user",
			"email", seed.email,
			"role", seed.role,
			"password", password,
		)
	}

	return nil
}
