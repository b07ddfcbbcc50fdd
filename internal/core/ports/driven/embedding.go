package driven

import "context"

// EmbeddingService turns text into fixed-dimension vectors.
// The coordinator treats a nil EmbeddingService as "no retrieval".
//
// Provider clients (openai, ollama) make one request per call. The
// embedding adapter wraps one of them with batching, rate limiting and
// retries, and also satisfies this interface.
type EmbeddingService interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length. It must equal the dimension the
	// vector store was created with.
	Dimensions() int

	// ModelName identifies the embedding model.
	ModelName() string

	// Ping makes a lightweight request without running inference.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
