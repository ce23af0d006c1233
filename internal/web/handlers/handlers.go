package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Options tunes handler behaviour
type Options struct {
	// NullOnMissing answers reads of unknown ids with null and 200 instead of 404
	NullOnMissing bool
}

// Handlers contains all HTTP handlers
type Handlers struct {
	opts Options
}

// New creates a new Handlers instance
func New(opts Options) *Handlers {
	return &Handlers{opts: opts}
}

// errorResponse is the body of every error reply
type errorResponse struct {
	Error string `json:"error"`
}

// jsonResponse encodes v as JSON with the given status
func (h *Handlers) jsonResponse(w http.ResponseWriter, r *http.Request, v any, status int) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Failed to encode response")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	body, _ := json.Marshal(errorResponse{Error: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Root returns the static greeting
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, r, map[string]string{"Hello": "World"}, http.StatusOK)
}
