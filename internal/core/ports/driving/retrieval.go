package driving

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// RetrievalService answers similarity queries for text.
type RetrievalService interface {
	// Retrieve embeds the query and returns the k closest chunks.
	Retrieve(ctx context.Context, query string, k int, tags []string) ([]domain.ScoredChunk, error)

	// Stats reports store counters.
	Stats(ctx context.Context) (*domain.StoreStats, error)
}
