package database

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/facebuddy/facebuddy/internal/facematch"
)

// Conflict describes an existing embedding that is closer to a new
// registration than the match threshold while belonging to another name.
type Conflict struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// DuplicateIndex wraps an HNSW graph over every registered embedding and
// answers "does this face already belong to someone else?".
type DuplicateIndex struct {
	graph   *hnsw.Graph[int64]
	names   map[int64]string
	vectors map[int64][]float32
	nextKey int64
	dim     int
	mu      sync.RWMutex
}

// NewDuplicateIndex creates a new empty index.
func NewDuplicateIndex() *DuplicateIndex {
	return &DuplicateIndex{
		graph:   newGraph(),
		names:   make(map[int64]string),
		vectors: make(map[int64][]float32),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromFaces replaces the index contents with faces.
func (d *DuplicateIndex) BuildFromFaces(faces []StoredFace) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.graph = newGraph()
	d.names = make(map[int64]string, len(faces))
	d.vectors = make(map[int64][]float32, len(faces))
	d.nextKey = 0
	d.dim = 0

	for _, f := range faces {
		d.addLocked(f.Profile.Name, f.Embedding)
	}
}

// Add indexes one embedding under name. Empty embeddings and embeddings
// whose dimension differs from the indexed ones are ignored; the return value
// reports whether the embedding was indexed.
func (d *DuplicateIndex) Add(name string, embedding []float32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(name, embedding)
}

func (d *DuplicateIndex) addLocked(name string, embedding []float32) bool {
	if name == "" || len(embedding) == 0 {
		return false
	}
	if d.dim == 0 {
		d.dim = len(embedding)
	} else if len(embedding) != d.dim {
		// The graph panics on mixed dimensions.
		return false
	}

	vec := append([]float32(nil), embedding...)
	d.nextKey++
	d.graph.Add(hnsw.MakeNode(d.nextKey, vec))
	d.names[d.nextKey] = name
	d.vectors[d.nextKey] = vec
	return true
}

// FindConflict returns the nearest indexed embedding within threshold whose
// name differs from name. Returns nil when there is none.
func (d *DuplicateIndex) FindConflict(query []float32, name string, threshold float64) *Conflict {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.graph.Len() == 0 || len(query) != d.dim {
		return nil
	}

	neighbors := d.graph.Search(query, HNSWSearchCandidates)

	// Recompute exact distances; the graph only orders candidates.
	candidates := make([]Conflict, 0, len(neighbors))
	for _, n := range neighbors {
		other, ok := d.names[n.Key]
		if !ok || other == name {
			continue
		}
		dist := facematch.EuclideanDistance(query, d.vectors[n.Key])
		if dist <= threshold {
			candidates = append(candidates, Conflict{Name: other, Distance: dist})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Name < candidates[j].Name
	})
	return &candidates[0]
}

// Count returns the number of indexed embeddings.
func (d *DuplicateIndex) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}
