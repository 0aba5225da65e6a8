package web

import (
	"net/http"
	"time"

	"github.com/facebuddy/facebuddy/internal/web/handlers"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	threshold := s.config.Gallery.MatchThreshold
	if threshold <= 0 {
		threshold = -1
	}

	facesHandler := handlers.NewFacesHandler(s.deps.Gallery, s.deps.Detector, threshold)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Gallery)
	agentHandler := handlers.NewAgentHandler(s.deps.Runner, s.jobManager, s.config.Agent.Timeout)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Requests that finish within the request cycle get a hard limit;
		// SSE streams below do not.
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(2 * time.Minute))

			r.Get("/faces", facesHandler.List)
			r.Post("/faces", facesHandler.Register)
			r.Post("/recognize", facesHandler.Recognize)

			r.Post("/agent", agentHandler.Start)
			r.Get("/agent/{jobId}", agentHandler.Status)
			r.Delete("/agent/{jobId}", agentHandler.Cancel)

			r.Get("/gallery/snapshot", galleryHandler.Export)
			r.Post("/gallery/snapshot", galleryHandler.Publish)
		})

		r.Get("/agent/{jobId}/events", agentHandler.Events)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
