package driven

import (
	"context"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// CompletionService obtains model responses, optionally requesting tools.
//
// Implementations may include:
//   - OpenAI (GPT-4o and compatible chat completion APIs)
//   - Ollama (local models exposing the OpenAI-compatible endpoint)
type CompletionService interface {
	// Complete returns the next assistant message for the conversation.
	// The returned message may carry ToolCalls.
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (*ChatMessage, error)

	// ModelName returns the default model.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a completion request.
type ChatMessage struct {
	// Role is one of system, user, assistant or tool.
	Role domain.Role

	// Content is the message text.
	Content string

	// ToolCalls is set on assistant messages requesting tools.
	ToolCalls []domain.ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

// ToolSpec is a tool as advertised to the model.
type ToolSpec struct {
	Name        string
	Description string

	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// CompletionOptions configures a completion request.
type CompletionOptions struct {
	// Model overrides the service default when set.
	Model string

	// Tools are offered to the model. Empty disables tool calling.
	Tools []ToolSpec

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// AIConfigValidator checks that configured AI providers are reachable.
type AIConfigValidator interface {
	// ValidateEmbedding pings the embedding provider described by config.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateLLM pings the completion provider described by config.
	ValidateLLM(config *domain.LLMSettings) error
}
