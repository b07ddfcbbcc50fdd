package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "(not set)", maskDSN(""))
	assert.Equal(t, "postgres://sazid:****@db:5432/sazid", maskDSN("postgres://sazid:secret@db:5432/sazid"))
	assert.Equal(t, "postgres://db/sazid", maskDSN("postgres://db/sazid"))
	assert.Equal(t, "postgres://sazid@db/sazid", maskDSN("postgres://sazid@db/sazid"))
	assert.Equal(t, "(set)", maskDSN("host=db password=secret"))
}

func TestSettingsShowCmd(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.settings.settings.Embedding.APIKey = "sk-1234567890abcdef"

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"settings", "show"})

	require.NoError(t, rootCmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "[Embedding]")
	assert.Contains(t, out, "text-embedding-3-small")
	assert.Contains(t, out, "sk-1...cdef")
	assert.NotContains(t, out, "sk-1234567890abcdef")
	assert.Contains(t, out, "Fallback Model: gpt-4o-mini")
	assert.Contains(t, out, "Max Tool Rounds: 8")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsShowCmd_Invalid(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.settings.invalid = errMock

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"settings"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Warning: mock failure")
}

func TestSettingsStorageCmd(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	// Backend 2 (postgres), a DSN, metric 1 (squared Euclidean).
	rootCmd.SetIn(strings.NewReader("2\npostgres://db/sazid\n1\n"))
	rootCmd.SetArgs([]string{"settings", "storage"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 1, m.settings.saved)
	assert.Equal(t, domain.StoragePostgres, m.settings.settings.Storage.Backend)
	assert.Equal(t, "postgres://db/sazid", m.settings.settings.Storage.PostgresDSN)
	assert.Equal(t, domain.DistanceL2, m.settings.settings.Storage.Metric)
}

func TestSettingsEmbeddingCmd_SwitchProvider(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	// Provider 2 (ollama), keep the default model, base URL and dimensions.
	rootCmd.SetIn(strings.NewReader("2\n\nhttp://localhost:11434\n\n"))
	rootCmd.SetArgs([]string{"settings", "embedding"})

	require.NoError(t, rootCmd.Execute())
	e := m.settings.settings.Embedding
	assert.Equal(t, domain.AIProviderOllama, e.Provider)
	assert.Equal(t, "nomic-embed-text", e.Model)
	assert.Equal(t, 768, e.Dimensions)
	assert.Equal(t, "http://localhost:11434", e.BaseURL)
	assert.Contains(t, buf.String(), "Embedding provider configured")
}

func TestSettingsLLMCmd_ClearFallback(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	// Keep provider 1 (openai), set a model and drop the fallback.
	rootCmd.SetIn(strings.NewReader("1\ngpt-4.1\n-\n"))
	rootCmd.SetArgs([]string{"settings", "llm"})

	require.NoError(t, rootCmd.Execute())
	l := m.settings.settings.LLM
	assert.Equal(t, domain.AIProviderOpenAI, l.Provider)
	assert.Equal(t, "gpt-4.1", l.Model)
	assert.Empty(t, l.FallbackModel)
}
