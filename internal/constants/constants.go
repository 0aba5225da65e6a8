// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// MatchThreshold is the maximum Euclidean distance for two embeddings to be
	// considered the same person. Stored galleries were built against it.
	MatchThreshold = 0.6

	// OverlapIoUThreshold is the IoU above which two detections are treated as
	// the same face and the lower scoring one is dropped
	OverlapIoUThreshold = 0.5
)

// Image processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) of a frame sent
	// to the embedding server
	MaxImageSize = 1280

	// MaxUploadSize is the largest multipart body accepted by the web API
	MaxUploadSize = 16 << 20

	// MaxResponseSize caps bodies read from the agent, embedding and issuer
	// services
	MaxResponseSize = 8 << 20
)

// Agent constants
const (
	// TriggerWordFace and TriggerWordBuddy must both appear in a transcript
	// before the agent is invoked
	TriggerWordFace  = "face"
	TriggerWordBuddy = "buddy"

	// SummaryMaxLength is the longest agent response shown verbatim; longer
	// text is cut to SummaryCutLength characters plus an ellipsis
	SummaryMaxLength = 100
	SummaryCutLength = 97

	// DefaultPaymentAsset is used when neither the model nor the profile names one
	DefaultPaymentAsset = "USDC"

	// NoFacesMessage is reported when no detection resolves to a known profile
	NoFacesMessage = "No recognized faces detected"
)

// Blob storage constants
const (
	// DefaultBlobEpochs is how many storage epochs a published snapshot is kept
	DefaultBlobEpochs = 5

	// MaxSnapshotSize caps a gallery snapshot read from or acknowledged by
	// the blob store
	MaxSnapshotSize = 64 << 20
)

// Job constants
const (
	// JobRetention is how long finished agent jobs stay queryable, in minutes
	JobRetention = 30

	// EventBufferSize is the per-listener buffer for SSE job events
	EventBufferSize = 100
)
