/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a local frontend

ROUTE GROUPS:
  /api/categories, /api/envelopes, /api/change-sets   Configuration
  /api/transactions, /api/calendars                   Ledger
  /api/simulations, /api/runs, /api/reconcile         Simulation
  /api/scenarios                                      Demo data

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/envelope/serve.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/envelope-engine/generic"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)

		r.Route("/envelopes", func(r chi.Router) {
			r.Get("/", h.ListEnvelopes)
			r.Put("/{category}", h.PutEnvelope)
		})

		r.Route("/change-sets", func(r chi.Router) {
			r.Get("/", h.ListChangeSets)
			r.Put("/{month}", h.PutChangeSet)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.ImportTransactions)
		})

		r.Get("/calendars/{category}", h.GetCalendar)

		r.Route("/simulations", func(r chi.Router) {
			r.Post("/capped-refill", h.Simulate(generic.PolicyCappedRefill))
			r.Post("/slush-fund", h.Simulate(generic.PolicySlushFund))
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
		})

		r.Post("/reconcile", h.Reconcile)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "envelope-engine",
			"endpoints": []string{
				"/api/categories", "/api/envelopes", "/api/change-sets",
				"/api/transactions", "/api/calendars/{category}",
				"/api/simulations/capped-refill", "/api/simulations/slush-fund",
				"/api/runs", "/api/reconcile", "/api/scenarios",
			},
		})
	})

	return r
}
