package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the API surface. Realtime fan-out lives in the gateway
// binary; this router is plain request/response.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/units", h.ListUnits)
		r.Route("/elections/{id}", func(r chi.Router) {
			r.Get("/", h.GetSnapshot)
			r.Get("/status", h.GetStatus)
			r.Post("/turn/advance", h.AdvanceTurn)
			r.Get("/selections", h.ListSelections)
			r.Post("/selections", h.SelectUnit)
		})
	})

	return r
}
