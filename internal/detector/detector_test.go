package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestPrepareImage(t *testing.T) {
	tests := []struct {
		name      string
		width     int
		height    int
		maxSize   int
		wantW     int
		wantH     int
		wantScale float64
	}{
		{"no resize needed", 100, 80, 200, 100, 80, 1},
		{"landscape", 2000, 1000, 500, 500, 250, 4},
		{"portrait", 1000, 2000, 500, 250, 500, 4},
		{"square", 1000, 1000, 250, 250, 250, 4},
		{"exactly max", 500, 300, 500, 500, 300, 1},
		{"disabled", 900, 900, 0, 900, 900, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeJPEG(createTestImage(tt.width, tt.height, color.White))

			prepared, err := PrepareImage(data, tt.maxSize)
			if err != nil {
				t.Fatalf("PrepareImage failed: %v", err)
			}

			decoded, format, err := image.Decode(bytes.NewReader(prepared.Data))
			if err != nil {
				t.Fatalf("failed to decode result: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("expected jpeg format, got %s", format)
			}
			if decoded.Bounds().Dx() != tt.wantW || decoded.Bounds().Dy() != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", decoded.Bounds().Dx(), decoded.Bounds().Dy(), tt.wantW, tt.wantH)
			}
			if prepared.Width != tt.width || prepared.Height != tt.height {
				t.Errorf("original size = %dx%d", prepared.Width, prepared.Height)
			}
			if prepared.Scale != tt.wantScale {
				t.Errorf("Scale = %v, want %v", prepared.Scale, tt.wantScale)
			}
		})
	}
}

func TestPrepareImage_PNGInput(t *testing.T) {
	data := encodePNG(createTestImage(300, 200, color.Black))
	prepared, err := PrepareImage(data, 150)
	if err != nil {
		t.Fatalf("PrepareImage failed: %v", err)
	}
	if detectMIMEType(prepared.Data) != "image/jpeg" {
		t.Error("PNG input should be re-encoded as JPEG")
	}
}

func TestPrepareImage_InvalidData(t *testing.T) {
	if _, err := PrepareImage([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid image data")
	}
	if _, err := PrepareImage(nil, 100); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart upload, got %s", r.Header.Get("Content-Type"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		defer file.Close()
		if header.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("part content type = %s", header.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(file)
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("uploaded data is not an image: %v", err)
		}
		if img.Bounds().Dx() != 400 {
			t.Errorf("uploaded width = %d, want 400", img.Bounds().Dx())
		}

		json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 4,
			Model:      "buffalo_l",
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 2, Embedding: []float32{0.1, 0.2}, BBox: []float64{10, 10, 60, 110}, DetScore: 0.95},
				{FaceIndex: 1, Dim: 2, Embedding: []float32{0.1, 0.2}, BBox: []float64{12, 12, 62, 112}, DetScore: 0.60},
				{FaceIndex: 2, Dim: 2, Embedding: []float32{0.3, 0.4}, BBox: []float64{200, 50, 250, 100}, DetScore: 0.88},
				{FaceIndex: 3, Dim: 0, Embedding: nil, BBox: []float64{0, 0, 5, 5}, DetScore: 0.5},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, WithMaxImageSize(400))
	dets, err := client.Detect(context.Background(), encodeJPEG(createTestImage(800, 400, color.White)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(dets) != 2 {
		t.Fatalf("expected 2 detections after dedupe, got %d", len(dets))
	}
	first := dets[0]
	if first.Box.X != 20 || first.Box.Y != 20 || first.Box.Width != 100 || first.Box.Height != 200 {
		t.Errorf("box not scaled back to original frame: %+v", first.Box)
	}
	if first.Score != 0.95 {
		t.Errorf("expected higher scoring duplicate to survive, got %v", first.Score)
	}
	if len(dets[1].Embedding) != 2 || dets[1].Embedding[0] != 0.3 {
		t.Errorf("unexpected second detection %+v", dets[1])
	}
}

func TestDetect_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL).Detect(context.Background(), encodeJPEG(createTestImage(10, 10, color.White)))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plaintext"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
