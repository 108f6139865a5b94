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

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	httpapi "github.com/halcyonlabs/adminauth/internal/auth/http"
	"github.com/halcyonlabs/adminauth/internal/auth/mail"
	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/internal/auth/store/drivers/sqlite"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	cache    *cache.Cache
	signer   *jwtx.Signer
	verifier *jwtx.Verifier

	// Services
	tokenService        *service.TokenService
	userService         *service.UserService
	roleService         *service.RoleService
	permissionService   *service.PermissionService
	oauth2Service       *service.OAuth2Service
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "adminauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initCache(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	signer, verifier, err := InitSigner(cfg, app.logger)
	if err != nil {
		_ = app.cache.Close()
		_ = app.db.Close()
		return nil, err
	}
	app.signer = signer
	app.verifier = verifier

	app.initServices()

	// Seed the role/permission matrix and the first admin account. A
	// populated database makes this a no-op.
	if err := app.bootstrapService.Run(ctx); err != nil {
		_ = app.cache.Close()
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to bootstrap database: %w", err)
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close the cache connection
	if err := app.cache.Close(); err != nil {
		app.logger.Error("error closing cache", "error", err)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCache connects to redis, which backs the revocation blacklist and the
// one-time authorization codes.
func (app *Application) initCache(ctx context.Context) error {
	c, err := cache.New(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.cache = c

	app.logger.Info("cache connected", "addr", app.cfg.RedisAddr)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Signer:     app.signer,
		Verifier:   app.verifier,
		Store:      app.db,
		Blacklist:  cache.NewBlacklist(app.cache),
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}

	app.userService = &service.UserService{
		Store:    app.db,
		Tokens:   app.tokenService,
		Mail:     app.initMailSender(),
		BaseURL:  app.cfg.BaseURL,
		ResetTTL: app.cfg.ResetTokenTTL,
		SetupTTL: app.cfg.SetupTokenTTL,
	}

	app.roleService = &service.RoleService{Store: app.db}
	app.permissionService = &service.PermissionService{Store: app.db}

	clients := make(map[string]service.ClientConfig, len(app.cfg.Clients))
	for id, uris := range app.cfg.Clients {
		clients[id] = service.ClientConfig{ID: id, RedirectURIs: uris}
	}
	app.oauth2Service = &service.OAuth2Service{
		Users:   app.userService,
		Tokens:  app.tokenService,
		Codes:   cache.NewAuthCodes(app.cache, app.cfg.AuthCodeTTL),
		Clients: clients,
		CodeTTL: app.cfg.AuthCodeTTL,
	}

	app.bootstrapService = &service.BootstrapService{
		Store:         app.db,
		AdminEmail:    app.cfg.AdminEmail,
		AdminUsername: app.cfg.AdminUsername,
		AdminPassword: app.cfg.AdminPassword,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initMailSender() mail.Sender {
	if app.cfg.SMTPAddr == "" {
		app.logger.Warn("SMTP not configured, outgoing mail is logged and dropped")
		return mail.NopSender{}
	}
	return mail.NewSMTPSender(app.cfg.SMTPAddr, app.cfg.SMTPFrom, app.cfg.SMTPUsername, app.cfg.SMTPPassword)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		app.verifier,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.cache,
		app.logger,
	)

	// Wire services to router
	router.SecureCookies = app.cfg.SecureCookies
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.RoleService = app.roleService
	router.PermissionService = app.permissionService
	router.OAuth2Service = app.oauth2Service
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
