package services

import (
	"context"
	"fmt"
	"math"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

// embedText embeds text as a single vector. Text over maxTokens is split
// into chunks whose embeddings are averaged and renormalised.
func embedText(ctx context.Context, embedder driven.EmbeddingService, text string, maxTokens int) ([]float32, error) {
	if maxTokens <= 0 || chunker.CountTokens(text) <= maxTokens {
		return embedder.Embed(ctx, text)
	}

	parts, err := chunker.Split(text, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("split for embedding: %w", err)
	}
	vectors, err := embedder.EmbedBatch(ctx, parts)
	if err != nil {
		return nil, err
	}
	return meanVector(vectors)
}

// meanVector averages equal-length vectors and scales the result to unit length.
func meanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, domain.NewError(domain.KindEmbeddingUnavailable, "no embeddings returned", nil)
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for _, v := range vectors {
		if len(v) != dims {
			return nil, domain.Errorf(domain.KindEmbeddingUnavailable,
				"embedding dimension mismatch: %d and %d", dims, len(v))
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	var norm float64
	for i := range sum {
		sum[i] /= float64(len(vectors))
		norm += sum[i] * sum[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dims)
	for i, x := range sum {
		if norm > 0 {
			x /= norm
		}
		out[i] = float32(x)
	}
	return out, nil
}
