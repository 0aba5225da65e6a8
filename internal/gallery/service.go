// Package gallery owns the live face gallery: it loads registered faces from
// the configured store, keeps an immutable matcher snapshot current after
// every registration and publishes snapshots to the blob store.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/database"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/humanity"
	"github.com/facebuddy/facebuddy/internal/logger"
)

var (
	// ErrInvalidProfile is returned when a registration has no usable name.
	ErrInvalidProfile = errors.New("invalid profile name")
	// ErrInvalidDescriptor is returned for empty descriptors or descriptors
	// whose dimension differs from the gallery.
	ErrInvalidDescriptor = errors.New("invalid face descriptor")
)

// CredentialIssuer signs registration claims. *humanity.Client satisfies it.
type CredentialIssuer interface {
	Enabled() bool
	Issue(ctx context.Context, subjectAddress string, claims any) (*humanity.Credential, error)
}

// view is one immutable generation of the gallery.
type view struct {
	saved    []facematch.SavedFace
	gallery  *facematch.Gallery
	profiles map[string]facematch.Profile
	version  uint64
}

// Service is safe for concurrent use. Readers always see a complete gallery;
// writers are serialized.
type Service struct {
	store     database.Backend
	blobs     blobstore.Store
	issuer    CredentialIssuer
	dupes     *database.DuplicateIndex
	threshold float64

	current   atomic.Pointer[view]
	writeMu   sync.Mutex
	published atomic.Uint64
}

// Option configures a Service.
type Option func(*Service)

// WithBlobStore enables snapshot publishing and blob imports.
func WithBlobStore(s blobstore.Store) Option {
	return func(svc *Service) { svc.blobs = s }
}

// WithIssuer issues a credential after each registration.
func WithIssuer(i CredentialIssuer) Option {
	return func(svc *Service) { svc.issuer = i }
}

// WithThreshold sets the distance used by the duplicate check.
func WithThreshold(t float64) Option {
	return func(svc *Service) {
		if t > 0 {
			svc.threshold = t
		}
	}
}

// NewService creates a service over store. A nil store keeps the gallery in
// memory for the lifetime of the process.
func NewService(store database.Backend, opts ...Option) *Service {
	if store == nil {
		store = database.NewMemoryStore()
	}
	s := &Service{
		store:     store,
		dupes:     database.NewDuplicateIndex(),
		threshold: constants.MatchThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(buildView(nil, 0))
	return s
}

func buildView(saved []facematch.SavedFace, version uint64) *view {
	return &view{
		saved:    saved,
		gallery:  facematch.BuildGallery(saved),
		profiles: facematch.ProfilesByName(saved),
		version:  version,
	}
}

// Store returns the backing store.
func (s *Service) Store() database.Backend {
	return s.store
}

// Snapshot returns the gallery and profiles current at call time.
func (s *Service) Snapshot() (*facematch.Gallery, map[string]facematch.Profile) {
	v := s.current.Load()
	return v.gallery, v.profiles
}

// Load replaces the in-memory gallery with the store contents.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	faces, err := s.store.ListFaces(ctx)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}

	saved := database.SavedFaces(faces)
	v := buildView(saved, s.current.Load().version+1)
	s.current.Store(v)
	s.dupes.BuildFromFaces(faces)
	// Whatever came from the store is already persisted somewhere.
	s.published.Store(v.version)

	if v.gallery.Skipped() > 0 {
		logger.Warning("gallery entries skipped", logger.Options{Key: "skipped", Data: v.gallery.Skipped()})
	}
	logger.Info("gallery loaded",
		logger.Options{Key: "backend", Data: s.store.Name()},
		logger.Options{Key: "faces", Data: len(saved)},
		logger.Options{Key: "names", Data: v.gallery.Len()},
	)
	return nil
}

// Bootstrap loads the store and, when it is empty and blobID is set, seeds it
// from that published snapshot.
func (s *Service) Bootstrap(ctx context.Context, blobID string) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	if blobID == "" || len(s.current.Load().saved) > 0 {
		return nil
	}

	n, err := s.ImportBlob(ctx, blobID)
	if err != nil {
		return fmt.Errorf("seeding gallery from blob %s: %w", blobID, err)
	}
	logger.Info("gallery seeded from blob",
		logger.Options{Key: "blob_id", Data: blobID},
		logger.Options{Key: "faces", Data: n},
	)
	return nil
}

// Registration reports the outcome of Register.
type Registration struct {
	FaceID     int64                `json:"faceId"`
	Profile    facematch.Profile    `json:"profile"`
	Embeddings int                  `json:"embeddings"` // stored for this name after registering
	Duplicate  *database.Conflict   `json:"possibleDuplicate,omitempty"`
	Credential *humanity.Credential `json:"credential,omitempty"`
	Warnings   []string             `json:"warnings,omitempty"`
}

// Register stores one more embedding under profile.Name. Registering an
// existing name appends the embedding and replaces the stored profile. The
// name "unknown" is reserved for unmatched faces and is refused.
func (s *Service) Register(ctx context.Context, profile facematch.Profile, descriptor facematch.Embedding) (*Registration, error) {
	name, ok := facematch.CleanName(profile.Name)
	if !ok {
		if name == "" {
			return nil, ErrInvalidProfile
		}
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidProfile, name)
	}
	profile.Name = name
	if len(descriptor) == 0 {
		return nil, fmt.Errorf("%w: empty descriptor", ErrInvalidDescriptor)
	}

	reg, err := s.addFace(ctx, profile, descriptor)
	if err != nil {
		return nil, err
	}

	// Issued outside writeMu.
	if s.issuer != nil && s.issuer.Enabled() {
		cred, err := s.issuer.Issue(ctx, profile.Name, profile)
		if err != nil {
			logger.Error("issuing credential failed", logger.Options{Key: "error", Data: err})
			reg.Warnings = append(reg.Warnings, "credential_failed")
		} else {
			reg.Credential = cred
		}
	}

	return reg, nil
}

// addFace persists the embedding and publishes the next view under writeMu.
func (s *Service) addFace(ctx context.Context, profile facematch.Profile, descriptor facematch.Embedding) (*Registration, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	if dim := cur.gallery.Dim(); dim > 0 && len(descriptor) != dim {
		return nil, fmt.Errorf("%w: dimension %d, gallery uses %d", ErrInvalidDescriptor, len(descriptor), dim)
	}

	reg := &Registration{Profile: profile}
	if c := s.dupes.FindConflict(descriptor, profile.Name, s.threshold); c != nil {
		reg.Duplicate = c
		reg.Warnings = append(reg.Warnings, fmt.Sprintf("possible_duplicate: face is %.3f from %s", c.Distance, c.Name))
		logger.Warning("possible duplicate registration",
			logger.Options{Key: "name", Data: profile.Name},
			logger.Options{Key: "existing", Data: c.Name},
			logger.Options{Key: "distance", Data: c.Distance},
		)
	}

	stored := database.StoredFace{
		Profile:   profile,
		Embedding: append([]float32(nil), descriptor...),
		Source:    database.SourceAPI,
	}
	id, err := s.store.AddFace(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("storing face: %w", err)
	}
	reg.FaceID = id

	saved := make([]facematch.SavedFace, len(cur.saved), len(cur.saved)+1)
	copy(saved, cur.saved)
	saved = append(saved, stored.SavedFace())
	next := buildView(saved, cur.version+1)
	s.current.Store(next)
	s.dupes.Add(profile.Name, stored.Embedding)
	reg.Embeddings = next.gallery.Count(profile.Name)

	logger.Info("face registered",
		logger.Options{Key: "name", Data: profile.Name},
		logger.Options{Key: "face_id", Data: id},
		logger.Options{Key: "embeddings", Data: reg.Embeddings},
	)
	return reg, nil
}

// Import stores every valid saved face and refreshes the gallery. Names are
// trimmed like Register trims them; entries with a blank or reserved name or
// an empty descriptor are skipped. Returns how many were stored.
func (s *Service) Import(ctx context.Context, saved []facematch.SavedFace, source string) (int, error) {
	faces := make([]database.StoredFace, 0, len(saved))
	for _, sf := range saved {
		if _, ok := facematch.CleanName(sf.Label.Name); !ok || len(sf.Descriptor) == 0 {
			continue
		}
		faces = append(faces, database.FromSavedFace(sf, source))
	}
	if len(faces) == 0 {
		return 0, nil
	}

	n, err := s.store.AddFaces(ctx, faces)
	if err != nil {
		return 0, fmt.Errorf("storing imported faces: %w", err)
	}
	if err := s.Load(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// ImportBlob fetches a published snapshot and imports it.
func (s *Service) ImportBlob(ctx context.Context, blobID string) (int, error) {
	if s.blobs == nil {
		return 0, blobstore.ErrDisabled
	}
	data, err := s.blobs.Get(ctx, blobID)
	if err != nil {
		return 0, err
	}
	saved, err := DecodeSnapshot(data)
	if err != nil {
		return 0, err
	}
	return s.Import(ctx, saved, database.SourceBlob)
}

// Export returns the current gallery in snapshot form. Every entry carries
// the latest profile of its name.
func (s *Service) Export() []facematch.SavedFace {
	v := s.current.Load()
	out := make([]facematch.SavedFace, len(v.saved))
	for i, sf := range v.saved {
		if p, ok := v.profiles[sf.Label.Name]; ok {
			sf.Label = p
		}
		out[i] = sf
	}
	return out
}

// DecodeSnapshot parses the snapshot wire format, a JSON array of
// {label, descriptor} objects.
func DecodeSnapshot(data []byte) ([]facematch.SavedFace, error) {
	var saved []facematch.SavedFace
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("decoding gallery snapshot: %w", err)
	}
	return saved, nil
}

// EncodeSnapshot renders saved faces in the snapshot wire format.
func EncodeSnapshot(saved []facematch.SavedFace) ([]byte, error) {
	if saved == nil {
		saved = []facematch.SavedFace{}
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("encoding gallery snapshot: %w", err)
	}
	return data, nil
}

// NameSummary is one row of Summary.
type NameSummary struct {
	Name       string `json:"name"`
	Embeddings int    `json:"embeddings"`
}

// Summary lists the registered names with their embedding counts, sorted by name.
func (s *Service) Summary() []NameSummary {
	g, _ := s.Snapshot()
	names := g.Names()
	out := make([]NameSummary, len(names))
	for i, n := range names {
		out[i] = NameSummary{Name: n, Embeddings: g.Count(n)}
	}
	return out
}

// Changed reports whether the gallery changed since the last publish or load.
func (s *Service) Changed() bool {
	return s.current.Load().version != s.published.Load()
}
