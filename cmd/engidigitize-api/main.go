// Package main provides the EngiDigitize API server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/spherical-ai/spherical/libs/engidigitize/cmd/engidigitize-api/handlers"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/app"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/config"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeConfig) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		}
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("provider", cfg.Remote.Provider).
		Str("cache", cfg.Cache.Driver).
		Bool("audit", cfg.Audit.Enabled).
		Msg("Starting EngiDigitize API")

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown+cfg.Server.ReadTimeout)
	defer cancelStart()

	a, err := app.Build(startCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build processing stack: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close processing stack")
		}
	}()

	// every processing cycle derives from this context
	serviceCtx, cancelService := context.WithCancel(context.Background())
	defer cancelService()

	objects := session.NewMemoryObjects(handlers.ObjectURLPrefix)
	sessions := session.NewManager(func(id string) *session.Machine {
		return session.NewMachine(id, a.MachineConfig(serviceCtx, objects))
	}, cfg.Session.IdleTTL, logger)
	defer sessions.Close()

	go sessions.Run(serviceCtx, cfg.Session.SweepInterval)

	svc := Services{
		Sessions: sessions,
		Objects:  objects,
		Checks:   readinessChecks(a),
	}
	if a.Runs != nil {
		svc.Runs = a.Runs
	}

	appCfg := DefaultAppConfig()
	appCfg.ServiceName = cfg.Observability.ServiceName
	appCfg.RequestTimeout = cfg.Server.RequestTimeout
	appCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	appCfg.MaxUploadBytes = cfg.Server.MaxUploadBytes
	appCfg.SessionCookie = cfg.Session.CookieName
	appCfg.SessionTTL = cfg.Session.IdleTTL
	appCfg.SimulatedDuration = cfg.Processing.SimulatedDuration
	appCfg.VectorExtension = cfg.Downloads.VectorExtension

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(logger, appCfg, svc),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	// abort in-flight remote calls before sessions release their documents
	cancelService()
	sessions.Close()

	created, released := objects.Counts()
	logger.Info().
		Int("objects_created", created).
		Int("objects_released", released).
		Int("objects_live", objects.Live()).
		Msg("Server stopped")
	return serveErr
}

func readinessChecks(a *app.App) []handlers.Check {
	probes := a.Checks()
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]handlers.Check, 0, len(names))
	for _, name := range names {
		checks = append(checks, handlers.Check{Name: name, Ping: probes[name]})
	}
	return checks
}
