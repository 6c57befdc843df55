package handler

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"sitestats/internal/config"
	"sitestats/internal/middleware"
	"sitestats/internal/service"
	"sitestats/pkg/logger"
)

// RouterConfig carries everything the HTTP surface depends on
type RouterConfig struct {
	Visitor        service.VisitorService
	Settings       config.SettingsStore
	HealthChecks   map[string]HealthChecker
	StorageDriver  string
	Version        string
	AllowedOrigins []string
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
	Logger         *logger.Logger
}

// NewRouter builds the chi router for the stats API
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	statsHandler := NewStatsHandler(cfg.Visitor, cfg.Settings, log)
	settingsHandler := NewSettingsHandler(cfg.Settings, cfg.Visitor, log)
	healthHandler := NewHealthHandler(cfg.HealthChecks, cfg.StorageDriver, cfg.Version, log)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(cfg.RequestTimeout))

	r.NotFound(NotFound(log))
	r.MethodNotAllowed(MethodNotAllowed(log))

	r.Get("/health", healthHandler.Check)

	r.Route("/api/site-stats", func(r chi.Router) {
		r.Get("/config", statsHandler.GetConfig)

		r.Group(func(r chi.Router) {
			r.Use(rateLimiter.Middleware)

			r.With(middleware.RequireAjax(log)).Post("/", statsHandler.HandleAction)
			r.Post("/visit", statsHandler.RecordVisit)
			r.Post("/stats", statsHandler.GetStats)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.JWTSecret, log))

			r.Get("/settings", settingsHandler.Get)
			r.Put("/settings", settingsHandler.Update)
			r.Post("/cleanup", settingsHandler.Cleanup)
		})
	})

	return r
}
