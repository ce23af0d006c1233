package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/todos/internal/database"
	webmiddleware "github.com/saltyorg/todos/internal/web/middleware"
)

// maxBodyBytes caps request bodies for create and update
const maxBodyBytes = 1 << 20

// todoRequest is the body accepted by create and update. Any id in the body
// is ignored.
type todoRequest struct {
	Content *string `json:"content"`
}

// CreateTodo handles POST /todos/
func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	content, ok := h.decodeContent(w, r)
	if !ok {
		return
	}

	session := h.session(w, r)
	if session == nil {
		return
	}

	todo, err := session.CreateTodo(r.Context(), content)
	if err != nil {
		h.storeError(w, r, err, "Failed to create todo")
		return
	}

	log.Debug().Int64("todo_id", *todo.ID).Msg("Todo created")
	h.jsonResponse(w, r, todo, http.StatusOK)
}

// ListTodos handles GET /todos/
func (h *Handlers) ListTodos(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	if session == nil {
		return
	}

	todos, err := session.ListTodos(r.Context())
	if err != nil {
		h.storeError(w, r, err, "Failed to list todos")
		return
	}

	h.jsonResponse(w, r, todos, http.StatusOK)
}

// GetTodo handles GET /todos/{id}
func (h *Handlers) GetTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	session := h.session(w, r)
	if session == nil {
		return
	}

	todo, err := session.GetTodo(r.Context(), id)
	if errors.Is(err, database.ErrTodoNotFound) && h.opts.NullOnMissing {
		h.jsonResponse(w, r, nil, http.StatusOK)
		return
	}
	if err != nil {
		h.storeError(w, r, err, "Failed to get todo")
		return
	}

	h.jsonResponse(w, r, todo, http.StatusOK)
}

// UpdateTodo handles PUT /todos/{id}
func (h *Handlers) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	content, ok := h.decodeContent(w, r)
	if !ok {
		return
	}

	session := h.session(w, r)
	if session == nil {
		return
	}

	todo, err := session.UpdateTodo(r.Context(), id, content)
	if err != nil {
		h.storeError(w, r, err, "Failed to update todo")
		return
	}

	log.Debug().Int64("todo_id", id).Msg("Todo updated")
	h.jsonResponse(w, r, todo, http.StatusOK)
}

// DeleteTodo handles DELETE /todos/{id}
func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	session := h.session(w, r)
	if session == nil {
		return
	}

	todo, err := session.DeleteTodo(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err, "Failed to delete todo")
		return
	}

	log.Debug().Int64("todo_id", id).Msg("Todo deleted")
	h.jsonResponse(w, r, todo, http.StatusOK)
}

// todoID parses the {id} URL parameter
func (h *Handlers) todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid todo ID", http.StatusUnprocessableEntity)
		return 0, false
	}
	return id, true
}

// decodeContent reads a todo body and requires content to be present
func (h *Handlers) decodeContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req todoRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusUnprocessableEntity)
		return "", false
	}
	// The body must hold exactly one JSON value
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		h.jsonError(w, "Invalid request body: unexpected data after JSON object", http.StatusUnprocessableEntity)
		return "", false
	}
	if req.Content == nil {
		h.jsonError(w, "content is required", http.StatusUnprocessableEntity)
		return "", false
	}
	return *req.Content, true
}

// session returns the request's database session, answering 500 when the
// route was mounted without the session middleware
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *database.Session {
	session := webmiddleware.GetSession(r.Context())
	if session == nil {
		log.Error().
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("No database session in request context")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
	return session
}

// storeError maps repository errors to responses
func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, database.ErrTodoNotFound) {
		h.jsonError(w, "Todo not found", http.StatusNotFound)
		return
	}

	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg(msg)
	h.jsonError(w, "Internal server error", http.StatusInternalServerError)
}
