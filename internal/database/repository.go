package database

import (
	"context"

	"github.com/facebuddy/facebuddy/internal/facematch"
)

// GalleryReader provides read-only access to registered faces
type GalleryReader interface {
	// ListFaces returns every stored face in registration order. Each face
	// carries the current profile of its name.
	ListFaces(ctx context.Context) ([]StoredFace, error)
	// Count returns the total number of stored embeddings
	Count(ctx context.Context) (int, error)
	// GetProfile returns the profile registered under name, nil if unknown
	GetProfile(ctx context.Context, name string) (*facematch.Profile, error)
}

// GalleryWriter provides write access to registered faces
type GalleryWriter interface {
	GalleryReader

	// AddFace upserts the face's profile and stores its embedding.
	// Returns the new face ID.
	AddFace(ctx context.Context, face StoredFace) (int64, error)

	// AddFaces stores many faces atomically. Returns how many were stored.
	AddFaces(ctx context.Context, faces []StoredFace) (int, error)
}

// SnapshotRecorder remembers which blobs hold published gallery snapshots
type SnapshotRecorder interface {
	// RecordSnapshot stores a publication. Recording the same blob ID twice is not an error.
	RecordSnapshot(ctx context.Context, blobID string, faceCount int) error
	// LatestSnapshot returns the most recent publication, nil if none
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}

// Backend is a complete gallery store.
type Backend interface {
	GalleryWriter
	SnapshotRecorder
	Name() string
	Close() error
}
