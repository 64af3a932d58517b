// Package api serves the viewer to a browser: the current frame, its state,
// key input and a live update stream.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	_ "embed"

	"github.com/starford/pixgrade/internal/viewer"
)

//go:embed static/index.html
var indexHTML []byte

// Handler holds the viewer route handlers.
type Handler struct {
	surface *Surface
	events  chan<- viewer.Event
}

// NewHandler creates a Handler that reads frames from surface and forwards
// key events to the session loop through events.
func NewHandler(surface *Surface, events chan<- viewer.Event) *Handler {
	return &Handler{surface: surface, events: events}
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

// Frame handles GET /api/frame.png. Conditional requests with a matching
// If-None-Match get 304.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	f, ok := h.surface.Frame()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no frame yet"))
		return
	}
	etag := f.ETag
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.PNG)
}

// State handles GET /api/state.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	f, ok := h.surface.Frame()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no frame yet"))
		return
	}
	writeJSON(w, http.StatusOK, f.State)
}

// Keys handles POST /api/keys.
func (h *Handler) Keys(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ev, _ := viewer.KeyEvent(req.Key)

	select {
	case h.events <- ev:
		writeJSON(w, http.StatusAccepted, KeyResponse{Key: req.Key, Queued: true})
	case <-h.surface.Done():
		writeJSON(w, http.StatusGone, errorBody("viewer closed"))
	case <-r.Context().Done():
		writeJSON(w, http.StatusServiceUnavailable, errorBody("request cancelled"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
