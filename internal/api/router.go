package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the viewer API routes. sseHandler, if
// non-nil, is mounted at GET /events. Mount the result under /api.
func NewRouter(h *Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/frame.png", h.Frame)
	r.Get("/state", h.State)
	r.Post("/keys", h.Keys)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
