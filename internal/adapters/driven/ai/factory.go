// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/embedding"
	ollamaembed "github.com/cosmikwolf/sazid/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/cosmikwolf/sazid/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/cosmikwolf/sazid/internal/adapters/driven/llm/ollama"
	openaillm "github.com/cosmikwolf/sazid/internal/adapters/driven/llm/openai"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateAndValidateEmbeddingService creates the retrying embedding adapter
// and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "embedding provider", err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, domain.NewError(domain.KindEmbeddingUnavailable,
			fmt.Sprintf("%s unreachable", settings.Provider), err)
	}
	return svc, nil
}

// CreateAndValidateCompletionService creates a completion service and
// validates connectivity.
func CreateAndValidateCompletionService(ctx context.Context, settings *domain.LLMSettings) (driven.CompletionService, error) {
	svc, err := CreateCompletionService(settings)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "completion provider", err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: %s unreachable: %w", domain.ErrLLMUnavailable, settings.Provider, err)
	}
	return svc, nil
}

// CreateEmbeddingService creates the provider for settings and wraps it in
// the batching, retrying adapter.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (*embedding.Adapter, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, fmt.Errorf("embedding provider is not configured")
	}

	var provider driven.EmbeddingService
	switch settings.Provider {
	case domain.AIProviderOllama:
		provider = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		provider = svc

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}

	opts := []embedding.Option{
		embedding.WithBatchSize(settings.BatchSize),
		embedding.WithMaxAttempts(settings.MaxAttempts),
	}
	if settings.RequestsPerSecond > 0 {
		opts = append(opts, embedding.WithRateLimit(embedding.RateLimitConfig{
			RequestsPerSecond: settings.RequestsPerSecond,
			BurstSize:         int(settings.RequestsPerSecond) + 1,
		}))
	}
	return embedding.NewAdapter(provider, opts...), nil
}

// CreateCompletionService creates the completion service for settings.
func CreateCompletionService(settings *domain.LLMSettings) (driven.CompletionService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, fmt.Errorf("completion provider is not configured")
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewCompletionService(ollamallm.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewCompletionService(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", settings.Provider)
	}
}
