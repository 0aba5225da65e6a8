package facematch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecognizedFace means no detection matched a registered name.
	ErrNoRecognizedFace = errors.New("no recognized face")
	// ErrInconsistentGallery means the gallery knows a name the profile map does not.
	ErrInconsistentGallery = errors.New("matched label has no profile")
)

// ProfilesByName indexes saved faces by profile name. A name registered more
// than once keeps its most recent profile.
func ProfilesByName(saved []SavedFace) map[string]Profile {
	profiles := make(map[string]Profile, len(saved))
	for _, face := range saved {
		if face.Label.Name == "" {
			continue
		}
		profiles[face.Label.Name] = face.Label
	}
	return profiles
}

// ResolveLargest matches every detection against the gallery and returns the
// recognised face with the largest bounding box. On equal areas the earlier
// detection wins. It returns false when no detection is recognised or when the
// winning label has no entry in profiles.
func ResolveLargest(dets []Detection, g *Gallery, profiles map[string]Profile) (*ResolvedFace, bool) {
	face, err := Resolve(dets, g, profiles, -1)
	if err != nil {
		return nil, false
	}
	return face, true
}

// Resolve is ResolveLargest with an explicit match threshold and an error
// telling the two failure modes apart. A negative threshold selects the
// default.
func Resolve(dets []Detection, g *Gallery, profiles map[string]Profile, threshold float64) (*ResolvedFace, error) {
	var best *ResolvedFace
	bestArea := -1.0

	for i, det := range dets {
		var m Match
		if threshold < 0 {
			m = g.Match(det.Embedding)
		} else {
			m = g.MatchWithThreshold(det.Embedding, threshold)
		}
		if !m.Known() {
			continue
		}
		if area := det.Box.Area(); area > bestArea {
			bestArea = area
			best = &ResolvedFace{Index: i, Detection: det, Match: m}
		}
	}

	if best == nil {
		return nil, ErrNoRecognizedFace
	}
	profile, ok := profiles[best.Match.Label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInconsistentGallery, best.Match.Label)
	}
	best.Profile = profile
	return best, nil
}
