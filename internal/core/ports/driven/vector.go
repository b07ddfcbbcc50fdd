package driven

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// VectorIndex is an approximate nearest neighbour index over string ids.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Add inserts a vector for the given id.
	Add(id string, embedding []float32) error

	// Delete removes a vector from the index.
	Delete(id string) error

	// Search finds the k nearest neighbours to the query vector.
	Search(query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed vectors.
	Len() int
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the matched vector.
	ID string

	// Distance under the index metric. Lower is closer.
	Distance float64
}

// VectorStore persists chunks with their embeddings and answers similarity queries.
// Queries see every committed row, indexed or not.
type VectorStore interface {
	// Upsert inserts a chunk, or does nothing when a chunk with the same
	// checksum exists. Reports whether a row was inserted.
	Upsert(ctx context.Context, chunk *domain.Chunk) (bool, error)

	// UpsertBatch upserts chunks in one transaction and reports the insert count.
	// A chunk whose checksum is already stored is not inserted again but
	// still becomes a member of its source path.
	UpsertBatch(ctx context.Context, chunks []domain.Chunk) (int, error)

	// QuerySimilar returns up to k chunks ordered by ascending distance.
	// A non-empty tag filter keeps chunks carrying any of the tags.
	QuerySimilar(ctx context.Context, query []float32, k int, tags []string) ([]domain.ScoredChunk, error)

	// DeleteBySource removes the source path's membership of its chunks and
	// deletes those no other source references. It returns the number of
	// chunks the source held.
	DeleteBySource(ctx context.Context, sourcePath string) (int, error)

	// DeleteByChecksum removes the chunk with the given checksum from every source.
	DeleteByChecksum(ctx context.Context, checksum string) (int, error)

	// SourceChecksums returns the checksums of every chunk the source path
	// holds, including chunks first stored by another source.
	SourceChecksums(ctx context.Context, sourcePath string) ([]string, error)

	// ListSources summarises stored sources.
	ListSources(ctx context.Context) ([]domain.SourceInfo, error)

	// Tags lists tags in use.
	Tags(ctx context.Context) ([]domain.Tag, error)

	// Stats reports store counters.
	Stats(ctx context.Context) (*domain.StoreStats, error)

	// Dimensions returns the configured embedding size.
	Dimensions() int

	// Metric returns the fixed distance metric.
	Metric() domain.DistanceMetric

	// Close releases resources.
	Close() error
}

// SessionStore persists sessions and their messages.
type SessionStore interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns sessions, most recent first.
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)

	// UpdateSummary replaces a session's summary.
	UpdateSummary(ctx context.Context, id, summary string) error

	// DeleteSession removes a session and, by cascade, its messages.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessages stores messages atomically: all or none.
	AppendMessages(ctx context.Context, sessionID string, messages []domain.Message) error

	// Messages returns up to limit most recent messages in chronological order.
	// A limit of zero returns all messages.
	Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// QuerySimilarMessages searches embedded messages of one session.
	QuerySimilarMessages(ctx context.Context, sessionID string, query []float32, k int) ([]domain.ScoredMessage, error)
}
