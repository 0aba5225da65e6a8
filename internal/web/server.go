package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/facebuddy/facebuddy/internal/logger"
	"github.com/facebuddy/facebuddy/internal/web/handlers"
	"github.com/facebuddy/facebuddy/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Gallery  *gallery.Service
	Detector agent.Detector // optional; image uploads are rejected without it
	Runner   *agent.Runner
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		deps:       deps,
		router:     r,
		jobManager: handlers.NewJobManager(),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger.L()))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logger.Info("starting web server", logger.Options{Key: "addr", Data: s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
