/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the scheduling UI

ROUTE GROUPS:
  /api/employees/*      Directory and employee scheduling flow
  /api/admin/*          Settings, admin submission, void, demo scenarios
  /healthz              Liveness and database reachability

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures cross-cutting HTTP concerns.
type RouterOptions struct {
	CORSOrigins []string
	Logger      *zap.Logger

	// Ping, when set, backs /healthz.
	Ping func(ctx context.Context) error

	// EnableScenarios mounts the demo scenario loaders.
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", actorHeader},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ping != nil {
			if err := opts.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)

			// Scheduling flow
			r.Route("/{id}/schedule", func(r chi.Router) {
				r.Post("/", h.SubmitSchedule)
				r.Get("/status", h.GetScheduleStatus)
				r.Post("/session", h.EnterSession)
				r.Delete("/session", h.ExitSession)
				r.Post("/preview", h.PreviewSchedule)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/settings", h.ListSettings)
			r.Put("/settings", h.PutSettings)
			r.Get("/settings/{month}", h.GetSettings)

			r.Post("/schedules", h.AdminSubmit)
			r.Get("/schedules/{month}", h.ListSchedules)
			r.Post("/schedules/{month}/{employeeID}/void", h.VoidSchedule)

			if opts.EnableScenarios {
				r.Get("/scenarios", h.ListScenarios)
				r.Get("/scenarios/current", h.GetCurrentScenario)
				r.Post("/scenarios/load", h.LoadScenario)
			}
		})
	})

	return r
}
