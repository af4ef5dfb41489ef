package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies collects what NewRouter wires together.
type RouterDependencies struct {
	Attendees      *AttendeeHandler
	Health         Pinger
	AllowedOrigins []string
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(logger *slog.Logger, deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(logger))
	r.Use(CORS(deps.AllowedOrigins))

	r.Get("/health", HealthCheck(logger, deps.Health))

	h := deps.Attendees
	r.Route("/attendees", func(r chi.Router) {
		r.Post("/", h.Register)
		r.Get("/", h.ListAttendees)
		r.Get("/stats", h.Stats)
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Post("/import/sheets", h.ImportSheets)
		r.Post("/export/sheets", h.ExportSheets)
		r.Get("/{id}", h.GetAttendee)
		r.Get("/{id}/qr.png", h.QRCode)
		r.Post("/{id}/checkin", h.CheckIn)
		r.Delete("/{id}/checkin", h.ClearCheckIn)
	})
	r.Post("/checkin", h.Scan)
	r.Get("/participant/{id}", h.GetAttendee)

	return r
}
