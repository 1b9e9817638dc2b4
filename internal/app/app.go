package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/abtime"

	"go-identity-service/internal/config"
	"go-identity-service/internal/database"
	"go-identity-service/internal/event"
	"go-identity-service/internal/handler"
	"go-identity-service/internal/mailer"
	"go-identity-service/internal/metrics"
	"go-identity-service/internal/middleware"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/router"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

// Deps are the collaborators that differ between production and tests.
type Deps struct {
	Store   service.IdentityStore
	Mailer  mailer.Mailer
	Clock   abtime.AbstractTime
	Hasher  security.PasswordHasher
	Metrics *metrics.Metrics
	Health  func(ctx context.Context) error
}

// Stack is the assembled service graph behind the HTTP handler.
type Stack struct {
	Handler    http.Handler
	Identities *service.IdentityService
	Bus        *event.InMemoryBus
	Recorder   *event.Recorder
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	deps := Deps{Metrics: metrics.New()}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory identity store; data is lost on restart")
		deps.Store = repository.NewMemoryIdentityRepository()
	default:
		slog.Info("applying database migrations")
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, database.Options{
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectRetries: cfg.DBConnectRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanups = append(cleanups, db.Close)

		deps.Store = repository.NewIdentityRepository(db.Pool)
		deps.Health = db.Health
	}

	switch cfg.MailDriver {
	case config.MailDriverSMTP:
		deps.Mailer = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	default:
		deps.Mailer = mailer.NewLogMailer(slog.Default())
	}

	stack, err := Assemble(cfg, deps)
	if err != nil {
		return fail(err)
	}
	stack.Recorder.Start(ctx)
	cleanups = append(cleanups, stack.Recorder.Stop)

	if cfg.BootstrapAdminEnabled() {
		if _, err := stack.Identities.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminName, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			return fail(fmt.Errorf("failed to seed bootstrap admin: %w", err))
		}
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           stack.Handler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanups}, nil
}

// Assemble wires services, middleware and handlers over deps. The returned
// recorder is not started.
func Assemble(cfg *config.Config, deps Deps) (*Stack, error) {
	if deps.Store == nil {
		return nil, errors.New("identity store is required")
	}
	if deps.Mailer == nil {
		deps.Mailer = mailer.NewLogMailer(slog.Default())
	}
	if deps.Clock == nil {
		deps.Clock = abtime.NewRealTime()
	}
	if deps.Hasher == nil {
		deps.Hasher = security.NewBcryptHasher(cfg.BcryptCost)
	}

	tokens, err := security.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn, deps.Clock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	bus := event.NewBus()
	recorder := event.NewRecorder(bus, deps.Metrics, slog.Default())

	identityService := service.NewIdentityService(deps.Store, deps.Hasher, deps.Clock, bus)
	authService := service.NewAuthService(identityService, deps.Hasher, tokens, deps.Mailer)
	resetService := service.NewResetService(identityService, authService, deps.Mailer, cfg.ResetTokenTTL, cfg.PublicURL)

	authMiddleware := middleware.NewAuthMiddleware(tokens, identityService, deps.Metrics)
	delivery := handler.NewCredentialDelivery(cfg.JWTCookieDays, cfg.CookieSecure, deps.Clock)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:   handler.NewAuthHandler(authService, resetService, delivery, cfg.PublicURL),
		User:   handler.NewUserHandler(identityService),
		Health: handler.NewHealthHandler(deps.Health),
	}, deps.Metrics)

	return &Stack{
		Handler:    appRouter,
		Identities: identityService,
		Bus:        bus,
		Recorder:   recorder,
	}, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
}
