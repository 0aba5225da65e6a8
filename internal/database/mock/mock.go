// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
)

// MockGallery is an in-memory database.Backend with error injection and
// call counters.
type MockGallery struct {
	store *database.MemoryStore

	mu         sync.Mutex
	addCalls   int
	closed     bool
	recordings []string

	// Error injection
	ListError       error
	CountError      error
	GetProfileError error
	AddError        error
	RecordError     error
	LatestError     error
}

// NewMockGallery creates a new empty mock gallery backend
func NewMockGallery() *MockGallery {
	return &MockGallery{store: database.NewMemoryStore()}
}

// Seed stores faces directly, bypassing error injection
func (m *MockGallery) Seed(faces ...database.StoredFace) {
	m.store.AddFaces(context.Background(), faces) //nolint:errcheck // memory store never fails
}

func (m *MockGallery) Name() string { return "mock" }

func (m *MockGallery) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockGallery) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockGallery) ListFaces(ctx context.Context) ([]database.StoredFace, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.store.ListFaces(ctx)
}

func (m *MockGallery) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	return m.store.Count(ctx)
}

func (m *MockGallery) GetProfile(ctx context.Context, name string) (*facematch.Profile, error) {
	if m.GetProfileError != nil {
		return nil, m.GetProfileError
	}
	return m.store.GetProfile(ctx, name)
}

func (m *MockGallery) AddFace(ctx context.Context, face database.StoredFace) (int64, error) {
	m.mu.Lock()
	m.addCalls++
	m.mu.Unlock()
	if m.AddError != nil {
		return 0, m.AddError
	}
	return m.store.AddFace(ctx, face)
}

func (m *MockGallery) AddFaces(ctx context.Context, faces []database.StoredFace) (int, error) {
	m.mu.Lock()
	m.addCalls++
	m.mu.Unlock()
	if m.AddError != nil {
		return 0, m.AddError
	}
	return m.store.AddFaces(ctx, faces)
}

// AddCalls returns how many times AddFace or AddFaces was called
func (m *MockGallery) AddCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls
}

func (m *MockGallery) RecordSnapshot(ctx context.Context, blobID string, faceCount int) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	m.recordings = append(m.recordings, blobID)
	m.mu.Unlock()
	return m.store.RecordSnapshot(ctx, blobID, faceCount)
}

// Recordings returns every blob ID passed to RecordSnapshot, duplicates included
func (m *MockGallery) Recordings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.recordings...)
}

func (m *MockGallery) LatestSnapshot(ctx context.Context) (*database.Snapshot, error) {
	if m.LatestError != nil {
		return nil, m.LatestError
	}
	return m.store.LatestSnapshot(ctx)
}

var _ database.Backend = (*MockGallery)(nil)
