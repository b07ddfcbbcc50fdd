package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService answers similarity queries over ingested chunks.
type RetrievalService struct {
	store     driven.VectorStore
	embedder  driven.EmbeddingService
	maxTokens int
}

// NewRetrievalService creates a retrieval service. Queries longer than
// maxTokens are embedded piecewise.
func NewRetrievalService(store driven.VectorStore, embedder driven.EmbeddingService, maxTokens int) *RetrievalService {
	if maxTokens <= 0 {
		maxTokens = chunker.DefaultMaxTokens
	}
	return &RetrievalService{store: store, embedder: embedder, maxTokens: maxTokens}
}

// Retrieve embeds the query and returns the k closest chunks.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int, tags []string) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	vec, err := embedText(ctx, s.embedder, query, s.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.store.QuerySimilar(ctx, vec, k, tags)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	return results, nil
}

// Stats reports store counters.
func (s *RetrievalService) Stats(ctx context.Context) (*domain.StoreStats, error) {
	return s.store.Stats(ctx)
}
