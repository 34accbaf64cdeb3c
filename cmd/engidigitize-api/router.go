package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/engidigitize/cmd/engidigitize-api/handlers"
	"github.com/spherical-ai/spherical/libs/engidigitize/cmd/engidigitize-api/middleware"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/session"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/views"
)

// Services are the long-lived dependencies the router serves.
type Services struct {
	Sessions *session.Manager
	Objects  session.ObjectStore
	Runs     handlers.RunReader
	Checks   []handlers.Check
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *AppConfig, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TraceID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	healthHandler := handlers.NewHealthHandler(cfg.ServiceName, svc.Checks...)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	sessionHandler := handlers.NewSessionHandler(logger, svc.Sessions, svc.Objects, handlers.SessionHandlerConfig{
		Render: views.RenderOptions{
			SimulatedDuration: cfg.SimulatedDuration,
			Results:           views.ResultsOptions{VectorExtension: cfg.VectorExtension},
		},
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	runsHandler := handlers.NewRunsHandler(logger, svc.Runs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(middleware.SessionConfig{
			CookieName: cfg.SessionCookie,
			MaxAge:     cfg.SessionTTL,
			Secure:     cfg.SecureCookies,
		}))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.View)
			r.Post("/upload", sessionHandler.Upload)
			r.Post("/reset", sessionHandler.Reset)
			r.Get("/original", sessionHandler.Original)
			r.Get("/downloads/{kind}", sessionHandler.Download)
		})

		r.Get("/objects/{objectId}", sessionHandler.Object)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{runId}", runsHandler.Get)
	})

	return r
}

// AppConfig holds router configuration.
type AppConfig struct {
	ServiceName       string
	RequestTimeout    time.Duration
	AllowedOrigins    []string
	MaxUploadBytes    int64
	SessionCookie     string
	SessionTTL        time.Duration
	SecureCookies     bool
	SimulatedDuration time.Duration
	VectorExtension   string
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ServiceName:       "engidigitize",
		RequestTimeout:    30 * time.Second,
		AllowedOrigins:    []string{"*"},
		MaxUploadBytes:    handlers.DefaultMaxUploadBytes,
		SessionCookie:     "engidigitize_session",
		SessionTTL:        30 * time.Minute,
		SimulatedDuration: views.DefaultSimulatedDuration,
		VectorExtension:   views.DefaultVectorExtension,
	}
}
