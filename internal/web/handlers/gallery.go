package handlers

import (
	"errors"
	"net/http"

	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// GalleryHandler publishes and exports gallery snapshots.
type GalleryHandler struct {
	gallery *gallery.Service
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(svc *gallery.Service) *GalleryHandler {
	return &GalleryHandler{gallery: svc}
}

// Publish uploads the current gallery to the blob store.
func (h *GalleryHandler) Publish(w http.ResponseWriter, r *http.Request) {
	blobID, err := h.gallery.Publish(r.Context())
	switch {
	case errors.Is(err, blobstore.ErrDisabled):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		logger.Error("snapshot publish failed", logger.Options{Key: "error", Data: err})
		respondError(w, http.StatusBadGateway, "failed to publish snapshot")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"blob_id": blobID,
		"faces":   len(h.gallery.Export()),
	})
}

// Export returns the current gallery in snapshot format.
func (h *GalleryHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := gallery.EncodeSnapshot(h.gallery.Export())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
