/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     zap access log (logger.Middleware)
  4. Metrics:    Prometheus request counters/latency
  5. Recoverer:  Panic recovery (500 instead of crash)
  6. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/policy, /api/entitlements, /api/units/*,
  /api/short-leave/*, /api/cross-utilization   Stateless engine calls
  /api/employees/*                             Employees, balances, requests
  /api/requests/*                              Approval workflow
  /metrics                                     Prometheus exposition
  /healthz                                     Liveness + database ping

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-engine/logger"
	"github.com/warp/leave-engine/metrics"
)

// RouterOptions carries the cross-cutting pieces of the router.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Service
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(h.Logger))
	r.Use(opts.Metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", opts.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Engine routes
		r.Get("/policy", h.GetPolicy)
		r.Post("/entitlements", h.CalculateEntitlement)
		r.Route("/units", func(r chi.Router) {
			r.Post("/working-days", h.WorkingDays)
			r.Post("/time-range", h.TimeRange)
			r.Post("/granular", h.Granular)
		})
		r.Post("/short-leave/validate", h.ValidateShortLeave)
		r.Post("/cross-utilization", h.CrossUtilize)

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Post("/{id}/balance/refresh", h.RefreshBalance)
			r.Post("/{id}/requests", h.SubmitRequest)
			r.Get("/{id}/requests", h.ListRequests)
		})

		// Request approval routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListQueue)
			r.Post("/{id}/review", h.ReviewRequest)
			r.Post("/{id}/forward", h.ForwardRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
		})
	})

	return r
}
