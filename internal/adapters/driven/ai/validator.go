package ai

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations by pinging them.
type ConfigValidator struct{}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidateEmbedding validates an embedding configuration.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	svc, err := CreateAndValidateEmbeddingService(context.Background(), config)
	if err != nil {
		return err
	}
	return svc.Close()
}

// ValidateLLM validates a completion configuration.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	svc, err := CreateAndValidateCompletionService(context.Background(), config)
	if err != nil {
		return err
	}
	return svc.Close()
}
