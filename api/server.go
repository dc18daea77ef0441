/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for internal tooling

ROUTE GROUPS:
  /api/products/*   Product, coverage and attribute management
  /api/admin/*      Migration and rollback operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)

			r.Route("/{id}/coverages", func(r chi.Router) {
				r.Get("/", h.ListCoverages)
				r.Post("/", h.CreateCoverage)
				r.Get("/{cid}", h.GetCoverage)

				r.Route("/{cid}/limits", func(r chi.Router) {
					r.Get("/", h.ListLimits)
					r.Post("/", h.WriteLimit)
					r.Delete("/{lid}", h.DeleteLimit)
				})

				r.Route("/{cid}/deductibles", func(r chi.Router) {
					r.Get("/", h.ListDeductibles)
					r.Post("/", h.WriteDeductible)
					r.Delete("/{did}", h.DeleteDeductible)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/migrate", h.TriggerMigration)
			r.Post("/rollback", h.TriggerRollback)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
