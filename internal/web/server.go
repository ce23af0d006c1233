package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/todos/internal/config"
	"github.com/saltyorg/todos/internal/database"
	"github.com/saltyorg/todos/internal/web/handlers"
	"github.com/saltyorg/todos/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	db         *database.DB
	cfg        *config.Config
	allowedNet *net.IPNet
	router     *chi.Mux
	handlers   *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, cfg *config.Config, allowedNet *net.IPNet) *Server {
	s := &Server{
		db:         db,
		cfg:        cfg,
		allowedNet: allowedNet,
		router:     chi.NewRouter(),
		handlers:   handlers.New(handlers.Options{NullOnMissing: cfg.NullOnMissing}),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	// The subnet check reads the socket address, before RealIP rewrites it
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.cfg.Timeouts.Request))

	r.Get("/", h.Root)

	r.Route("/todos", func(r chi.Router) {
		r.Use(middleware.Session(s.db))

		r.Get("/", h.ListTodos)
		r.Post("/", h.CreateTodo)
		r.Get("/{id}", h.GetTodo)
		r.Put("/{id}", h.UpdateTodo)
		r.Delete("/{id}", h.DeleteTodo)
	})
}

// Start starts the web server and blocks until ctx is cancelled or the
// listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.ListenAddr()

	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: s.cfg.Timeouts.Read,
		IdleTimeout: s.cfg.Timeouts.Idle,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
