// Package detector is a client for the face embedding server. It finds faces
// in a frame and returns them as facematch detections.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client calls the embedding server's face endpoint.
type Client struct {
	baseURL string
	maxSize int
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithMaxImageSize overrides the longest side sent to the server.
func WithMaxImageSize(px int) Option {
	return func(c *Client) { c.maxSize = px }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSize: constants.MaxImageSize,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceDetection is one face as reported by the server.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the server's reply to /embed/face.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Detect finds faces in an encoded image. Boxes are in the original image's
// pixel space even when a downscaled copy was uploaded. Overlapping duplicate
// detections are collapsed.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]facematch.Detection, error) {
	prepared, err := PrepareImage(imageData, c.maxSize)
	if err != nil {
		return nil, err
	}

	resp, err := c.DetectFaces(ctx, prepared.Data)
	if err != nil {
		return nil, err
	}

	dets := make([]facematch.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 || len(f.BBox) != 4 {
			continue
		}
		dets = append(dets, facematch.Detection{
			Box:       facematch.BoxFromCorners(f.BBox).Scale(prepared.Scale),
			Embedding: facematch.Embedding(f.Embedding),
			Score:     f.DetScore,
		})
	}

	return facematch.SuppressOverlaps(dets, constants.OverlapIoUThreshold), nil
}

// DetectFaces uploads already prepared image bytes and returns the raw reply.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// postMultipartImage posts the image as the "file" form field.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > constants.MaxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", constants.MaxResponseSize)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
