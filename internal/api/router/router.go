package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/availability-engine/internal/http/middleware"
	"github.com/wolfman30/availability-engine/internal/http/render"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/internal/slots"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	RulesHandler       *rules.Handler
	SlotsHandler       *slots.Handler
	JWTSecret          string
	CORSAllowedOrigins []string
	CORSMaxAge         time.Duration
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler

	// Ready reports dependency health for /health. Nil means always ready.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.RulesHandler == nil || cfg.SlotsHandler == nil {
		panic("router: rules and slots handlers required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins, httpmiddleware.WithCORSMaxAge(cfg.CORSMaxAge)))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Booking pages call these anonymously.
	r.Group(func(public chi.Router) {
		if cfg.RateLimiter != nil {
			public.Use(cfg.RateLimiter.Middleware)
		}
		cfg.SlotsHandler.RegisterPublicRoutes(public)
	})

	r.With(httpmiddleware.RequireAdmin(cfg.JWTSecret)).Post("/organizers", cfg.RulesHandler.CreateOrganizer)
	r.Route("/organizers/{organizerID}", func(org chi.Router) {
		org.Use(httpmiddleware.OrganizerJWT(cfg.JWTSecret, "organizerID"))
		cfg.RulesHandler.RegisterRoutes(org)
		cfg.SlotsHandler.RegisterManagementRoutes(org)
	})

	return r
}

func health(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				render.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		render.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
