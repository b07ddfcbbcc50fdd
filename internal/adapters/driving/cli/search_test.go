package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "5", flag.DefValue)
}

func TestSearchCmd_ExecutesWithQuery(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "-n", "3", "--tag", "go", "entry point"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Results:")
	assert.Contains(t, buf.String(), "internal/app/main.go#2 (0.1250)")
	assert.Contains(t, buf.String(), "func main() { run() }")
	assert.Equal(t, "entry point", m.retrieval.query)
	assert.Equal(t, 3, m.retrieval.k)
	assert.Equal(t, []string{"go"}, m.retrieval.tags)
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--json", "entry point"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"source": "internal/app/main.go"`)
	assert.Contains(t, buf.String(), `"distance": 0.125`)
}

func TestSearchCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	SetServices(nil)
	SetSetupError(errMock)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search", "test"})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval service not configured")
	assert.ErrorIs(t, err, errMock)
}

func TestSearchCmd_ServiceError(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.retrieval.err = errMock

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search", "test"})

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestOutputSearchJSON_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchJSON(rootCmd, []domain.ScoredChunk{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[]")
}

func TestOutputSearchTable_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchTable(rootCmd, []domain.ScoredChunk{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestOutputSearchTable_WithoutSource(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	results := []domain.ScoredChunk{{
		Chunk:    domain.Chunk{ID: "chunk-123", Content: "orphan"},
		Distance: 0.75,
	}}

	err := outputSearchTable(rootCmd, results)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "chunk-123")
	assert.Contains(t, buf.String(), "0.7500")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n\tb   c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
	assert.Equal(t, "", snippet("  \n ", 3))
}
