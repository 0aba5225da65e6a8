package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// FacesHandler handles gallery listing, registration and recognition.
type FacesHandler struct {
	gallery   *gallery.Service
	detector  agent.Detector
	threshold float64
}

// NewFacesHandler creates a new faces handler. detector may be nil, in which
// case only JSON requests carrying descriptors or detections are accepted.
// A negative threshold selects the default.
func NewFacesHandler(svc *gallery.Service, detector agent.Detector, threshold float64) *FacesHandler {
	return &FacesHandler{gallery: svc, detector: detector, threshold: threshold}
}

// GalleryResponse summarizes the registered names.
type GalleryResponse struct {
	Names      []gallery.NameSummary `json:"names"`
	Total      int                   `json:"total"`
	Embeddings int                   `json:"embeddings"`
	Dim        int                   `json:"dim"`
}

// List returns the gallery summary.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	g, _ := h.gallery.Snapshot()
	names := h.gallery.Summary()

	resp := GalleryResponse{Names: names, Total: len(names), Dim: g.Dim()}
	for _, n := range names {
		resp.Embeddings += n.Embeddings
	}
	respondJSON(w, http.StatusOK, resp)
}

// RegisterRequest is the JSON body of a registration.
type RegisterRequest struct {
	Profile    facematch.Profile   `json:"profile"`
	Descriptor facematch.Embedding `json:"descriptor"`
}

// Register adds a face to the gallery. The body is either a RegisterRequest
// or a multipart form with an "image" file and a "profile" JSON field; for
// images the largest detected face is registered.
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if isMultipart(r) {
		image, err := readImage(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("profile")), &req.Profile); err != nil {
			respondError(w, http.StatusBadRequest, "profile must be a JSON object")
			return
		}
		if h.detector == nil {
			respondError(w, http.StatusServiceUnavailable, "face detector not configured")
			return
		}

		dets, err := h.detector.Detect(r.Context(), image)
		if err != nil {
			logger.Error("face detection failed", logger.Options{Key: "error", Data: err})
			respondError(w, http.StatusBadGateway, "face detection failed")
			return
		}
		det, ok := largestDetection(dets)
		if !ok {
			respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
			return
		}
		req.Descriptor = det.Embedding
	} else if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	reg, err := h.gallery.Register(r.Context(), req.Profile, req.Descriptor)
	switch {
	case errors.Is(err, gallery.ErrInvalidProfile), errors.Is(err, gallery.ErrInvalidDescriptor):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Error("registration failed",
			logger.Options{Key: "name", Data: sanitizeForLog(req.Profile.Name)},
			logger.Options{Key: "error", Data: err},
		)
		respondError(w, http.StatusInternalServerError, "failed to register face")
		return
	}

	respondJSON(w, http.StatusCreated, reg)
}

// RecognizeRequest is the JSON body of a recognition.
type RecognizeRequest struct {
	Detections []facematch.Detection `json:"detections"`
}

// DetectionMatch is the verdict for one detection.
type DetectionMatch struct {
	Index int             `json:"index"`
	Box   facematch.Box   `json:"box"`
	Match facematch.Match `json:"match"`
}

// RecognizeResponse carries the resolved face and every per-detection match.
type RecognizeResponse struct {
	Face    *facematch.ResolvedFace `json:"face"`
	Matches []DetectionMatch        `json:"matches"`
}

// Recognize resolves the largest known face among the detections in the
// body, or among the faces detected in a multipart "image".
func (h *FacesHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var dets []facematch.Detection

	if isMultipart(r) {
		image, err := readImage(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if h.detector == nil {
			respondError(w, http.StatusServiceUnavailable, "face detector not configured")
			return
		}
		dets, err = h.detector.Detect(r.Context(), image)
		if err != nil {
			logger.Error("face detection failed", logger.Options{Key: "error", Data: err})
			respondError(w, http.StatusBadGateway, "face detection failed")
			return
		}
	} else {
		var req RecognizeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		dets = req.Detections
	}

	g, profiles := h.gallery.Snapshot()
	matches := make([]DetectionMatch, len(dets))
	for i, d := range dets {
		m := g.Match(d.Embedding)
		if h.threshold >= 0 {
			m = g.MatchWithThreshold(d.Embedding, h.threshold)
		}
		matches[i] = DetectionMatch{Index: i, Box: d.Box, Match: m}
	}

	face, err := facematch.Resolve(dets, g, profiles, h.threshold)
	if err != nil {
		if errors.Is(err, facematch.ErrInconsistentGallery) {
			logger.Error("inconsistent gallery", logger.Options{Key: "error", Data: err})
		}
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":   constants.NoFacesMessage,
			"matches": matches,
		})
		return
	}

	respondJSON(w, http.StatusOK, RecognizeResponse{Face: face, Matches: matches})
}
