package domain

import "time"

// Chunk is a bounded segment of text paired with its embedding.
// Chunks are immutable once stored and are removed only by purging their source.
type Chunk struct {
	// ID is a UUID assigned at ingestion.
	ID string

	// Content is the chunk text.
	Content string

	// Checksum is the hex SHA-256 of Content. Unique per store.
	Checksum string

	// SourcePath is the file the chunk came from, if any.
	SourcePath string

	// Embedding has the store's configured dimension.
	Embedding []float32

	// PageNumber is set for paginated sources.
	PageNumber *int

	// Position is the chunk's ordinal within its source.
	Position int

	// Tags are the names attached at ingestion.
	Tags []string

	CreatedAt time.Time
}

// Tag is a unique label shared by many chunks.
type Tag struct {
	ID   int64
	Name string
}

// ScoredChunk is a similarity query hit.
// Lower distance means more similar.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float64
}

// ScoredMessage is a similarity hit against stored session messages.
type ScoredMessage struct {
	Message  Message
	Distance float64
}

// SourceInfo summarises the chunks stored for one source path.
type SourceInfo struct {
	Path       string
	Chunks     int
	IngestedAt time.Time
}

// StoreStats reports row and index counts for a vector store.
type StoreStats struct {
	Chunks          int
	Messages        int
	Tags            int
	Sessions        int
	PendingChunks   int
	PendingMessages int
	Metric          DistanceMetric
	Dimensions      int
}

// DistanceMetric selects how vector distance is computed.
// A metric is fixed for the lifetime of an index.
type DistanceMetric string

// Available distance metrics.
const (
	// DistanceL2 is squared Euclidean distance.
	DistanceL2 DistanceMetric = "l2"

	// DistanceDot is negated inner product, so that smaller is closer.
	DistanceDot DistanceMetric = "dot"

	// DistanceCosine is one minus cosine similarity.
	DistanceCosine DistanceMetric = "cosine"
)

// IsValid returns true if the metric is recognised.
func (m DistanceMetric) IsValid() bool {
	switch m {
	case DistanceL2, DistanceDot, DistanceCosine:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m DistanceMetric) String() string {
	return string(m)
}

// Description returns a human-readable description of the metric.
func (m DistanceMetric) Description() string {
	switch m {
	case DistanceL2:
		return "Squared Euclidean"
	case DistanceDot:
		return "Negative inner product"
	case DistanceCosine:
		return "Cosine distance"
	default:
		return unknownDescription
	}
}

// AllDistanceMetrics returns all supported metrics.
func AllDistanceMetrics() []DistanceMetric {
	return []DistanceMetric{DistanceL2, DistanceDot, DistanceCosine}
}
