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
  4. CORS:       Cross-origin requests for admin frontend

ROUTE GROUPS:
  /api/members/*     Member roster, attendance, bands, statements
  /api/events        Biometric event ingest
  /api/attendance/*  Derivation
  /api/exceptions/*  Review queue and sign-off
  /api/freeze        Month sealing
  /api/payroll/*     Calculation and adjustments
  /api/admin/*       Settings and holidays

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
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

	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/attendance", h.GetAttendance)
			r.Get("/{id}/attendance/summary", h.GetMonthlySummary)
			r.Post("/{id}/corrections", h.Correct)
			r.Post("/{id}/leave", h.ApplyLeave)
			r.Get("/{id}/freeze", h.GetFreeze)
			r.Post("/{id}/bands", h.AssignBand)
			r.Get("/{id}/bands", h.ListBands)
			r.Get("/{id}/payroll", h.GetStatement)
		})

		// Event ingest
		r.Post("/events", h.IngestEvent)

		// Derivation
		r.Post("/attendance/derive", h.Derive)

		// Exception review queue
		r.Route("/exceptions", func(r chi.Router) {
			r.Get("/pending", h.ListPendingExceptions)
			r.Post("/{id}/resolve", h.ResolveException)
		})

		// Month sealing
		r.Post("/freeze", h.Freeze)

		// Payroll
		r.Route("/payroll", func(r chi.Router) {
			r.Post("/calculate", h.Calculate)
			r.Post("/{calcID}/adjustments", h.AddAdjustment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/settings", h.PutSetting)
			r.Post("/holidays", h.CreateHoliday)
		})
	})

	return r
}
