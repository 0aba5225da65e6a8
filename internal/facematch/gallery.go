package facematch

import (
	"math"
	"sort"

	"github.com/facebuddy/facebuddy/internal/constants"
	"gonum.org/v1/gonum/floats"
)

// Gallery is an immutable index of registered embeddings grouped by name.
// Rebuild it with BuildGallery whenever the saved faces change; never mutate
// one that may be in use by a concurrent match.
type Gallery struct {
	names   []string               // sorted, gives deterministic tie-breaks
	vectors map[string][][]float64 // per name, in registration order
	dim     int
	skipped int
}

// BuildGallery groups saved faces by profile name. Entries whose name fails
// CleanName, entries with an empty descriptor and entries whose dimension
// differs from the first accepted one are skipped.
func BuildGallery(saved []SavedFace) *Gallery {
	g := &Gallery{vectors: make(map[string][][]float64)}

	for _, face := range saved {
		name := face.Label.Name
		if _, ok := CleanName(name); !ok || len(face.Descriptor) == 0 {
			g.skipped++
			continue
		}
		if g.dim == 0 {
			g.dim = len(face.Descriptor)
		} else if len(face.Descriptor) != g.dim {
			g.skipped++
			continue
		}
		if _, ok := g.vectors[name]; !ok {
			g.names = append(g.names, name)
		}
		g.vectors[name] = append(g.vectors[name], toFloat64(face.Descriptor))
	}

	sort.Strings(g.names)
	return g
}

// Len returns the number of distinct names.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Names returns the registered names in lexicographic order.
func (g *Gallery) Names() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.names...)
}

// Count returns how many embeddings are stored under name.
func (g *Gallery) Count(name string) int {
	if g == nil {
		return 0
	}
	return len(g.vectors[name])
}

// Dim returns the embedding dimensionality, 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// Skipped returns how many input entries BuildGallery rejected.
func (g *Gallery) Skipped() int {
	if g == nil {
		return 0
	}
	return g.skipped
}

// Match finds the closest registered name using constants.MatchThreshold.
func (g *Gallery) Match(query Embedding) Match {
	return g.MatchWithThreshold(query, constants.MatchThreshold)
}

// MatchWithThreshold finds the name whose closest embedding has the smallest
// Euclidean distance to query. The label is UnknownLabel when that distance
// exceeds threshold, when the gallery is empty, or when query has the wrong
// dimension. Exact ties go to the lexicographically smallest name.
func (g *Gallery) MatchWithThreshold(query Embedding, threshold float64) Match {
	best := Match{Label: UnknownLabel, Distance: math.MaxFloat64}
	if g.Len() == 0 || len(query) != g.dim {
		return best
	}

	q := toFloat64(query)
	bestName := ""
	for _, name := range g.names {
		for _, v := range g.vectors[name] {
			d := floats.Distance(q, v, 2)
			if d < best.Distance {
				best.Distance = d
				bestName = name
			}
		}
	}

	if bestName != "" && best.Distance <= threshold {
		best.Label = bestName
	}
	return best
}

// EuclideanDistance returns the L2 distance between two embeddings, or +Inf
// when their lengths differ.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	return floats.Distance(toFloat64(a), toFloat64(b), 2)
}

func toFloat64(e Embedding) []float64 {
	out := make([]float64, len(e))
	for i, v := range e {
		out[i] = float64(v)
	}
	return out
}
