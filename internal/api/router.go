package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmarcwatch/dmarcwatch/internal/api/alerts"
	"github.com/dmarcwatch/dmarcwatch/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.PrometheusMiddleware)

	alertHandler := alerts.NewHandler(s.manager, s.evaluator, s.config.QueryTimeout)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ipLimiter))

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Post("/", alertHandler.Create)
			r.Get("/{id}", alertHandler.GetByID)
			r.Post("/{id}/acknowledge", alertHandler.Acknowledge)
			r.Post("/{id}/resolve", alertHandler.Resolve)
			r.Post("/bulk/acknowledge", alertHandler.BulkAcknowledge)
			r.Post("/bulk/resolve", alertHandler.BulkResolve)
		})

		r.Post("/evaluations", alertHandler.Evaluate)
	})

	// Health and metrics (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
