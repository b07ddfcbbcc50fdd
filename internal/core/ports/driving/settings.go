package driving

import "github.com/cosmikwolf/sazid/internal/core/domain"

// SettingsService reads, writes and checks application settings.
type SettingsService interface {
	// Get returns current settings with defaults and environment overrides applied.
	Get() (*domain.AppSettings, error)

	// Save persists settings. Secrets taken from the environment are not written.
	Save(settings *domain.AppSettings) error

	// Validate checks current settings for consistency.
	Validate() error

	// GetDefaults returns the built-in defaults.
	GetDefaults() domain.AppSettings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig() error

	// ValidateLLMConfig pings the configured completion provider.
	ValidateLLMConfig() error
}
