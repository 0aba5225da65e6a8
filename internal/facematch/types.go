// Package facematch turns registered faces into a gallery, matches detected
// faces against it and picks the single face a recognition pass acts on.
package facematch

import "strings"

// UnknownLabel is the label reported for a face that matched nobody.
const UnknownLabel = "unknown"

// CleanName trims a profile name and reports whether it can label a gallery
// entry. Blank names and UnknownLabel are refused.
func CleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != "" && name != UnknownLabel
}

// Embedding is a face feature vector produced by the external detector.
type Embedding []float32

// Profile identifies a registered person. Name doubles as the wallet address
// and as the gallery label.
type Profile struct {
	Name           string `json:"name"`
	LinkedIn       string `json:"linkedin,omitempty"`
	Telegram       string `json:"telegram,omitempty"`
	Twitter        string `json:"twitter,omitempty"`
	PreferredToken string `json:"preferredToken,omitempty"` // "USDC" when empty
	HumanID        string `json:"humanId,omitempty"`
}

// SavedFace pairs one embedding with the profile it was registered under.
// The JSON shape is the gallery snapshot format.
type SavedFace struct {
	Label      Profile   `json:"label"`
	Descriptor Embedding `json:"descriptor"`
}

// Detection is one face located in a frame.
type Detection struct {
	Box       Box       `json:"box"`
	Embedding Embedding `json:"embedding"`
	Score     float64   `json:"score,omitempty"` // detector confidence
}

// Match is the matcher's verdict for one embedding.
type Match struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Known reports whether the match names a registered person.
func (m Match) Known() bool {
	return m.Label != UnknownLabel
}

// ResolvedFace is the detection a recognition pass settled on.
type ResolvedFace struct {
	Index     int       `json:"index"` // position in the detection list
	Detection Detection `json:"detection"`
	Match     Match     `json:"match"`
	Profile   Profile   `json:"profile"`
}
