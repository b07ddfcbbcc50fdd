package driven

import "time"

// ConfigStore provides access to application configuration.
// Keys use dot notation for nested tables (e.g. "embedding.model").
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	// Returns the value and a boolean indicating if the key exists.
	Get(key string) (any, bool)

	// GetString retrieves a string configuration value.
	// Returns empty string if key doesn't exist or isn't a string.
	GetString(key string) string

	// GetInt retrieves an integer configuration value.
	// Returns 0 if key doesn't exist or isn't an integer.
	GetInt(key string) int

	// GetFloat retrieves a numeric configuration value.
	GetFloat(key string) float64

	// GetBool retrieves a boolean configuration value.
	GetBool(key string) bool

	// GetDuration parses a duration string such as "30s".
	// Returns 0 if the key doesn't exist or doesn't parse.
	GetDuration(key string) time.Duration

	// GetStringSlice retrieves a string slice configuration value.
	GetStringSlice(key string) []string

	// Set stores a configuration value and persists it.
	Set(key string, value any) error

	// Save persists the current configuration to storage.
	Save() error

	// Load reads configuration from storage.
	Load() error

	// Path returns the configuration file path.
	Path() string
}

// PromptStore provides access to user-editable prompt templates.
type PromptStore interface {
	// Load returns the template for name, falling back to the built-in default.
	Load(name string) (string, error)

	// Dir returns the directory holding the templates.
	Dir() string
}

// Prompt template names.
const (
	// PromptSystem opens every conversation.
	PromptSystem = "system"

	// PromptSummarize condenses a conversation. It takes the transcript via %s.
	PromptSummarize = "summarize"
)
