package database

// HNSW index parameters for the duplicate registration check
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchCandidates is how many neighbours a duplicate check inspects
	// before giving up on finding one under a different name.
	HNSWSearchCandidates = 8
)

// Face sources recorded with every stored embedding.
const (
	SourceAPI    = "api"
	SourceImport = "import"
	SourceBlob   = "blob"
)
