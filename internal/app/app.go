// Package app wires the application together: configuration, logging,
// telemetry, the profile store, the provider client, the lifecycle engine
// and the HTTP server with its middleware chain.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"keygate/internal/config"
	"keygate/internal/identity"
	"keygate/internal/infrastructure"
	"keygate/internal/license"
	"keygate/internal/lock"
	customMiddleware "keygate/internal/middleware"
	"keygate/internal/provider"
	"keygate/internal/repository/postgres"
	"keygate/internal/services"
	handlers "keygate/internal/transport/http"
)

// Version is set at build time
var Version = "dev"

// Application is the composed service container.
type Application struct {
	Config    *config.Config
	Router    *chi.Mux
	Server    *http.Server
	Logger    *slog.Logger
	Telemetry *infrastructure.TelemetryProviders

	db     *postgres.Connection
	locker lock.Locker
}

// New builds the application from configuration. Everything that can fail
// fails here, before the server starts listening.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry(infrastructure.DefaultTelemetryConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to profile store: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		db:        db,
	}

	var redisPinger handlers.Pinger
	if cfg.Redis.URL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.Redis.URL, 30*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect lock backend: %w", err)
		}
		app.locker = redisLocker
		redisPinger = redisLocker
	} else {
		logger.WarnContext(ctx, "no redis configured, using in-process lock, single instance only")
		app.locker = lock.NewKeyedMutex()
	}

	metrics := infrastructure.NewLifecycleMetrics(prometheus.DefaultRegisterer)

	repo := postgres.NewProfileRepository(db)
	providerClient := provider.NewHTTPClient(cfg.Provider, logger)
	engine := license.NewEngine(repo, providerClient, app.locker, logger, metrics, cfg.License.ResetCooldown)
	licenseService := services.NewLicenseService(engine, logger, metrics)

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	app.Router = app.buildRouter(licenseService, verifier, db, redisPinger)
	app.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        app.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

// buildRouter assembles the middleware chain and mounts the handlers.
func (a *Application) buildRouter(
	licenseService services.LicenseService,
	verifier identity.Verifier,
	db *postgres.Connection,
	redisPinger handlers.Pinger,
) *chi.Mux {
	cfg := a.Config
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if cfg.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}

	if cfg.Security.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, a.Logger)
		r.Use(limiter.Handler)
	}

	r.Use(customMiddleware.Timeout(60*time.Second, a.Logger))

	bearerAuth := customMiddleware.BearerAuth(verifier, a.Logger)
	sharedSecret := customMiddleware.SharedSecret(cfg.Security.WebhookSecret, a.Logger)

	licenseHandler := handlers.NewLicenseHandler(licenseService, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Logger, Version, map[string]handlers.Pinger{
		"database": db,
		"redis":    redisPinger,
	})

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes(bearerAuth, sharedSecret))
		r.Mount("/health", healthHandler.Routes())
		r.Get("/ip", handlers.IPHandler)
	})

	if a.Telemetry != nil && a.Telemetry.PrometheusHTTP != nil {
		r.Handle("/metrics", a.Telemetry.PrometheusHTTP)
	}

	return r
}

// Start begins serving. It returns once the listener is up; serve errors
// cancel the passed context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.String("addr", a.Server.Addr),
		slog.String("version", Version))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if closer, ok := a.locker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "error closing lock backend", slog.String("error", err.Error()))
		}
	}

	if a.db != nil {
		_ = a.db.Close()
	}

	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down telemetry", slog.String("error", err.Error()))
		}
	}

	infrastructure.CloseLogFile()

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run serves until interrupted, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
