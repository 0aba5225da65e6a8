package database

import (
	"context"
	"sync"
	"time"

	"github.com/facebuddy/facebuddy/internal/facematch"
)

// MemoryStore keeps the gallery for the lifetime of the process. It is the
// backend used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	faces     []StoredFace
	profiles  map[string]facematch.Profile
	snapshots []Snapshot
	nextID    int64
}

// NewMemoryStore creates an empty in-memory gallery store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]facematch.Profile)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) ListFaces(_ context.Context) ([]StoredFace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StoredFace, len(m.faces))
	for i, f := range m.faces {
		f.Profile = m.profiles[f.Profile.Name]
		f.Embedding = append([]float32(nil), f.Embedding...)
		out[i] = f
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

func (m *MemoryStore) GetProfile(_ context.Context, name string) (*facematch.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) AddFace(_ context.Context, face StoredFace) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(face), nil
}

func (m *MemoryStore) AddFaces(_ context.Context, faces []StoredFace) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range faces {
		m.addLocked(f)
	}
	return len(faces), nil
}

func (m *MemoryStore) addLocked(face StoredFace) int64 {
	m.nextID++
	face.ID = m.nextID
	face.Embedding = append([]float32(nil), face.Embedding...)
	if face.CreatedAt.IsZero() {
		face.CreatedAt = time.Now()
	}
	m.profiles[face.Profile.Name] = face.Profile
	m.faces = append(m.faces, face)
	return face.ID
}

func (m *MemoryStore) RecordSnapshot(_ context.Context, blobID string, faceCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.snapshots {
		if s.BlobID == blobID {
			return nil
		}
	}
	m.snapshots = append(m.snapshots, Snapshot{
		ID:        int64(len(m.snapshots) + 1),
		BlobID:    blobID,
		FaceCount: faceCount,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}
