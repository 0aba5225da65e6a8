package database

import (
	"strings"
	"time"

	"github.com/facebuddy/facebuddy/internal/facematch"
)

// StoredFace is one registered embedding together with the profile it
// belongs to.
type StoredFace struct {
	ID        int64
	Profile   facematch.Profile
	Embedding []float32
	Source    string // api, import or blob
	CreatedAt time.Time
}

// SavedFace converts to the gallery snapshot shape.
func (f StoredFace) SavedFace() facematch.SavedFace {
	return facematch.SavedFace{Label: f.Profile, Descriptor: facematch.Embedding(f.Embedding)}
}

// FromSavedFace converts a snapshot entry into a face ready to store. The
// profile name is trimmed the same way registration trims it.
func FromSavedFace(sf facematch.SavedFace, source string) StoredFace {
	profile := sf.Label
	profile.Name = strings.TrimSpace(profile.Name)
	return StoredFace{
		Profile:   profile,
		Embedding: append([]float32(nil), sf.Descriptor...),
		Source:    source,
	}
}

// SavedFaces converts a list of stored faces to snapshot entries, keeping order.
func SavedFaces(faces []StoredFace) []facematch.SavedFace {
	out := make([]facematch.SavedFace, len(faces))
	for i, f := range faces {
		out[i] = f.SavedFace()
	}
	return out
}

// Snapshot records one gallery publication to the blob store.
type Snapshot struct {
	ID        int64
	BlobID    string
	FaceCount int
	CreatedAt time.Time
}
