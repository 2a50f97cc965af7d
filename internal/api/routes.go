package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/waitlist-service/internal/pkg/httputil"
)

// SetupRoutes configures the route tree.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Sync-Token"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Post("/subscribe", h.Subscribe)

	// Reconciliation endpoints. /resend-sync is a legacy alias kept for
	// existing cron jobs; both dispatch on the "action" field.
	r.Group(func(r chi.Router) {
		r.Use(h.requireSyncToken)
		r.Post("/bulk-sync", h.Sync)
		r.Post("/resend-sync", h.Sync)
	})

	return r
}

// requireSyncToken guards the reconciliation endpoints with a shared
// secret. An empty configured token disables the check (local dev).
func (h *Handlers) requireSyncToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if h.syncToken != "" && req.Header.Get("X-Sync-Token") != h.syncToken {
			httputil.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, req)
	})
}
