package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the engine's HTTP surface. The WebSocket and metrics
// handlers are optional; passing nil leaves the route unregistered.
func NewRouter(h *Handler, wsHandler http.HandlerFunc, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/hierarchy", h.getHierarchy)
		r.Get("/status", h.getStatus)
		r.Get("/operation", h.getOperation)
		r.Post("/refresh", h.refresh)

		r.Post("/categories", h.createCategory)
		r.Post("/categories/rename", h.renameCategory)
		r.Post("/categories/move", h.moveCategory)
		r.Post("/concepts/transfer", h.transferConcepts)
		r.Post("/operation/cancel", h.cancelOperation)
	})

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	return r
}
