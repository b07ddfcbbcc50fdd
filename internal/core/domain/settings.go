package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or completions.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if the provider runs on the user's machine.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI"
	default:
		return unknownDescription
	}
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// AllAIProviders returns all supported AI providers.
func AllAIProviders() []AIProvider {
	return []AIProvider{AIProviderOpenAI, AIProviderOllama}
}

// StorageBackend selects the vector and session store implementation.
type StorageBackend string

// Storage backends.
const (
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	return b == StorageSQLite || b == StoragePostgres
}

// Description returns a human-readable description of the backend.
func (b StorageBackend) Description() string {
	switch b {
	case StorageSQLite:
		return "SQLite file with in-process HNSW index"
	case StoragePostgres:
		return "PostgreSQL with pgvector"
	default:
		return unknownDescription
	}
}

// AllStorageBackends returns all supported storage backends.
func AllStorageBackends() []StorageBackend {
	return []StorageBackend{StorageSQLite, StoragePostgres}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider   AIProvider
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int

	// BatchSize caps texts per remote request.
	BatchSize int

	// MaxAttempts caps retries of transient failures.
	MaxAttempts int

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds completion provider configuration.
type LLMSettings struct {
	Provider AIProvider
	Model    string

	// FallbackModel is tried once when Model fails.
	FallbackModel string

	BaseURL string
	APIKey  string
}

// IsConfigured returns true if the completion provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// StorageSettings holds vector and session store configuration.
type StorageSettings struct {
	Backend     StorageBackend
	DataDir     string
	PostgresDSN string
	Metric      DistanceMetric
}

// ToolSettings holds tool execution configuration.
type ToolSettings struct {
	// ProjectRoot is the directory every tool path must stay inside.
	ProjectRoot string

	// Timeout is the default per-invocation limit.
	Timeout time.Duration

	// ManifestPath points at an optional YAML file declaring extra CLI tools.
	ManifestPath string

	// MaxOutputBytes caps captured stdout and stderr each.
	MaxOutputBytes int
}

// ChatSettings holds coordinator behaviour.
type ChatSettings struct {
	ChunkTokens   int
	RetrievalK    int
	ContextTokens int
	MaxToolRounds int
	SystemPrompt  string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Storage   StorageSettings
	Tools     ToolSettings
	Chat      ChatSettings
}

// DefaultSystemPrompt primes the model for tool use on a code base.
const DefaultSystemPrompt = "You are a coding assistant working inside a software project. " +
	"Use the provided tools to search and patch files. Paths are relative to the project root."

// DefaultAppSettings returns settings with sensible defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:    AIProviderOpenAI,
			Model:       "text-embedding-3-small",
			Dimensions:  1536,
			BatchSize:   64,
			MaxAttempts: 5,
		},
		LLM: LLMSettings{
			Provider:      AIProviderOpenAI,
			Model:         "gpt-4o",
			FallbackModel: "gpt-4o-mini",
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
			Metric:  DistanceCosine,
		},
		Tools: ToolSettings{
			ProjectRoot:    ".",
			Timeout:        30 * time.Second,
			MaxOutputBytes: 256 * 1024,
		},
		Chat: ChatSettings{
			ChunkTokens:   512,
			RetrievalK:    5,
			ContextTokens: 6000,
			MaxToolRounds: 8,
			SystemPrompt:  DefaultSystemPrompt,
		},
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default completion models for each provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.1",
		AIProviderOpenAI: "gpt-4o",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
