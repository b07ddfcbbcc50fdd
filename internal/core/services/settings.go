package services

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment variables consulted by Get.
//
//nolint:gosec // G101: variable names, not credentials.
const (
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvPostgresDSN = "SAZID_POSTGRES_DSN"
)

// Config keys for settings storage.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedDims        = "embedding.dimensions"
	keyEmbedBatch       = "embedding.batch_size"
	keyEmbedAttempts    = "embedding.max_attempts"
	keyEmbedRPS         = "embedding.requests_per_second"
	keyLLMProvider      = "llm.provider"
	keyLLMModel         = "llm.model"
	keyLLMFallback      = "llm.fallback_model"
	keyLLMBaseURL       = "llm.base_url"
	keyStorageBackend   = "storage.backend"
	keyStorageDataDir   = "storage.data_dir"
	keyStorageDSN       = "storage.postgres_dsn"
	keyStorageMetric    = "storage.metric"
	keyToolsRoot        = "tools.project_root"
	keyToolsTimeout     = "tools.timeout"
	keyToolsManifest    = "tools.manifest"
	keyToolsMaxOutput   = "tools.max_output_bytes"
	keyChatChunkTokens  = "chat.chunk_tokens"
	keyChatRetrievalK   = "chat.retrieval_k"
	keyChatContext      = "chat.context_tokens"
	keyChatMaxToolRound = "chat.max_tool_rounds"
)

// SettingsService maps the flat config store onto typed settings. API
// keys come only from the environment.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service. aiValidator may be nil.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:          s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:             s.getString(keyEmbedModel, d.Embedding.Model),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL),
			Dimensions:        s.getInt(keyEmbedDims, 0),
			BatchSize:         s.getInt(keyEmbedBatch, d.Embedding.BatchSize),
			MaxAttempts:       s.getInt(keyEmbedAttempts, d.Embedding.MaxAttempts),
			RequestsPerSecond: s.configStore.GetFloat(keyEmbedRPS),
		},
		LLM: domain.LLMSettings{
			Provider:      s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:         s.getString(keyLLMModel, d.LLM.Model),
			FallbackModel: s.getString(keyLLMFallback, d.LLM.FallbackModel),
			BaseURL:       s.configStore.GetString(keyLLMBaseURL),
		},
		Storage: domain.StorageSettings{
			Backend:     domain.StorageBackend(s.getString(keyStorageBackend, string(d.Storage.Backend))),
			DataDir:     s.configStore.GetString(keyStorageDataDir),
			PostgresDSN: s.configStore.GetString(keyStorageDSN),
			Metric:      domain.DistanceMetric(s.getString(keyStorageMetric, string(d.Storage.Metric))),
		},
		Tools: domain.ToolSettings{
			ProjectRoot:    s.getString(keyToolsRoot, d.Tools.ProjectRoot),
			Timeout:        s.getDuration(keyToolsTimeout, d.Tools.Timeout),
			ManifestPath:   s.configStore.GetString(keyToolsManifest),
			MaxOutputBytes: s.getInt(keyToolsMaxOutput, d.Tools.MaxOutputBytes),
		},
		Chat: domain.ChatSettings{
			ChunkTokens:   s.getInt(keyChatChunkTokens, d.Chat.ChunkTokens),
			RetrievalK:    s.getInt(keyChatRetrievalK, d.Chat.RetrievalK),
			ContextTokens: s.getInt(keyChatContext, d.Chat.ContextTokens),
			MaxToolRounds: s.getInt(keyChatMaxToolRound, d.Chat.MaxToolRounds),
			SystemPrompt:  d.Chat.SystemPrompt,
		},
	}

	// Unset dimensions follow the model when it is a known one.
	if settings.Embedding.Dimensions == 0 {
		if dims, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
			settings.Embedding.Dimensions = dims
		} else {
			settings.Embedding.Dimensions = d.Embedding.Dimensions
		}
	}

	if key := s.getenv(EnvOpenAIKey); key != "" {
		if settings.Embedding.Provider.RequiresAPIKey() {
			settings.Embedding.APIKey = key
		}
		if settings.LLM.Provider.RequiresAPIKey() {
			settings.LLM.APIKey = key
		}
	}
	if dsn := s.getenv(EnvPostgresDSN); dsn != "" {
		settings.Storage.PostgresDSN = dsn
	}

	return settings, nil
}

// Save persists application settings. API keys are never written.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedBatch, settings.Embedding.BatchSize},
		{keyEmbedAttempts, settings.Embedding.MaxAttempts},
		{keyEmbedRPS, settings.Embedding.RequestsPerSecond},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMFallback, settings.LLM.FallbackModel},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyStorageBackend, string(settings.Storage.Backend)},
		{keyStorageDataDir, settings.Storage.DataDir},
		{keyStorageMetric, settings.Storage.Metric.String()},
		{keyToolsRoot, settings.Tools.ProjectRoot},
		{keyToolsTimeout, settings.Tools.Timeout},
		{keyToolsManifest, settings.Tools.ManifestPath},
		{keyToolsMaxOutput, settings.Tools.MaxOutputBytes},
		{keyChatChunkTokens, settings.Chat.ChunkTokens},
		{keyChatRetrievalK, settings.Chat.RetrievalK},
		{keyChatContext, settings.Chat.ContextTokens},
		{keyChatMaxToolRound, settings.Chat.MaxToolRounds},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	// A DSN from the environment stays out of the file.
	if settings.Storage.PostgresDSN != s.getenv(EnvPostgresDSN) {
		if err := s.configStore.Set(keyStorageDSN, settings.Storage.PostgresDSN); err != nil {
			return fmt.Errorf("save %s: %w", keyStorageDSN, err)
		}
	}
	return nil
}

// Validate checks current settings. Any failure is a configuration error.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := validateSettings(settings); err != nil {
		return domain.NewError(domain.KindConfiguration, "invalid settings", err)
	}
	return nil
}

func validateSettings(st *domain.AppSettings) error {
	providers := []any{domain.AIProviderOllama, domain.AIProviderOpenAI}
	e, l, sto, tl, c := &st.Embedding, &st.LLM, &st.Storage, &st.Tools, &st.Chat

	return validation.Errors{
		"embedding": validation.ValidateStruct(e,
			validation.Field(&e.Provider, validation.Required, validation.In(providers...)),
			validation.Field(&e.Model, validation.Required),
			validation.Field(&e.Dimensions, validation.Required, validation.Min(1)),
			validation.Field(&e.BatchSize, validation.Min(1)),
			validation.Field(&e.MaxAttempts, validation.Min(1)),
			validation.Field(&e.RequestsPerSecond, validation.Min(0.0)),
			validation.Field(&e.APIKey, validation.When(e.Provider.RequiresAPIKey(),
				validation.Required.Error("must be set through "+EnvOpenAIKey))),
		),
		"llm": validation.ValidateStruct(l,
			validation.Field(&l.Provider, validation.Required, validation.In(providers...)),
			validation.Field(&l.Model, validation.Required),
			validation.Field(&l.APIKey, validation.When(l.Provider.RequiresAPIKey(),
				validation.Required.Error("must be set through "+EnvOpenAIKey))),
		),
		"storage": validation.ValidateStruct(sto,
			validation.Field(&sto.Backend, validation.Required,
				validation.In(domain.StorageSQLite, domain.StoragePostgres)),
			validation.Field(&sto.Metric, validation.Required,
				validation.In(domain.DistanceL2, domain.DistanceDot, domain.DistanceCosine)),
			validation.Field(&sto.PostgresDSN, validation.When(sto.Backend == domain.StoragePostgres,
				validation.Required.Error("is required for the postgres backend"))),
		),
		"tools": validation.ValidateStruct(tl,
			validation.Field(&tl.ProjectRoot, validation.Required),
			validation.Field(&tl.Timeout, validation.Required, validation.Min(time.Millisecond)),
			validation.Field(&tl.MaxOutputBytes, validation.Min(1)),
		),
		"chat": validation.ValidateStruct(c,
			validation.Field(&c.ChunkTokens, validation.Required, validation.Min(1)),
			validation.Field(&c.RetrievalK, validation.Min(0)),
			validation.Field(&c.ContextTokens, validation.Required, validation.Min(1)),
			validation.Field(&c.MaxToolRounds, validation.Required, validation.Min(1)),
		),
	}.Filter()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, ok := s.configStore.Get(key); !ok {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	if d := s.configStore.GetDuration(key); d > 0 {
		return d
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	p := domain.AIProvider(s.configStore.GetString(key))
	if !p.IsValid() {
		return defaultVal
	}
	return p
}
