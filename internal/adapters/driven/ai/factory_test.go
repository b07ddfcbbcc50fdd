package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.EmbeddingSettings
		wantDims int
		wantErr  bool
	}{
		{name: "nil settings", settings: nil, wantErr: true},
		{name: "unconfigured", settings: &domain.EmbeddingSettings{}, wantErr: true},
		{
			name:     "ollama",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "nomic-embed-text"},
			wantDims: 768,
		},
		{
			name: "openai",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI, APIKey: "sk-test", Model: "text-embedding-3-small",
			},
			wantDims: 1536,
		},
		{
			name:     "openai without key",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDims, svc.Dimensions())
			assert.Equal(t, tt.settings.Model, svc.ModelName())
		})
	}
}

func TestCreateCompletionService(t *testing.T) {
	svc, err := CreateCompletionService(&domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "qwen2.5-coder"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder", svc.ModelName())

	svc, err = CreateCompletionService(&domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", svc.ModelName())

	_, err = CreateCompletionService(&domain.LLMSettings{Provider: "unknown"})
	assert.Error(t, err)
}

func TestCreateAndValidateCompletionService_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := CreateAndValidateCompletionService(t.Context(), &domain.LLMSettings{
		Provider: domain.AIProviderOpenAI, APIKey: "bad", BaseURL: server.URL,
	})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestConfigValidator_Embedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v := NewConfigValidator()
	assert.NoError(t, v.ValidateEmbedding(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama, BaseURL: server.URL, Model: "all-minilm",
	}))

	err := v.ValidateEmbedding(&domain.EmbeddingSettings{})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}
