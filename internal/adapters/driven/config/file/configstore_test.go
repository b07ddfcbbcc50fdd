package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())

	_, ok := store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.model", "gpt-4o"))
	require.NoError(t, store.Set("chat.retrieval_k", 7))
	require.NoError(t, store.Set("embedding.requests_per_second", 2.5))
	require.NoError(t, store.Set("tools.timeout", 45*time.Second))
	require.NoError(t, store.Set("debug", true))
	require.NoError(t, store.Set("chat.tags", []string{"docs", "src"}))

	assert.Equal(t, "gpt-4o", store.GetString("llm.model"))
	assert.Equal(t, 7, store.GetInt("chat.retrieval_k"))
	assert.InDelta(t, 2.5, store.GetFloat("embedding.requests_per_second"), 1e-9)
	assert.Equal(t, 45*time.Second, store.GetDuration("tools.timeout"))
	assert.True(t, store.GetBool("debug"))
	assert.Equal(t, []string{"docs", "src"}, store.GetStringSlice("chat.tags"))

	// Wrong types read as zero values.
	assert.Zero(t, store.GetInt("llm.model"))
	assert.Empty(t, store.GetString("chat.retrieval_k"))
	assert.Zero(t, store.GetDuration("llm.model"))
}

func TestConfigStore_PersistsNestedTables(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("embedding.model", "nomic-embed-text"))
	require.NoError(t, store.Set("embedding.dimensions", 768))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[embedding]")

	reopened, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", reopened.GetString("embedding.model"))
	assert.Equal(t, 768, reopened.GetInt("embedding.dimensions"))
}

func TestConfigStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.model", "a"))
	require.NoError(t, store.Set("llm.model", "b"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.toml", entries[0].Name())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[llm]
model = "gpt-4o"
fallback_model = "gpt-4o-mini"

[tools]
timeout = "10s"
project_root = "/srv/app"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", store.GetString("llm.fallback_model"))
	assert.Equal(t, 10*time.Second, store.GetDuration("tools.timeout"))
	assert.Equal(t, "/srv/app", store.GetString("tools.project_root"))
}

func TestConfigStore_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0600))

	_, err := NewConfigStore(dir)
	assert.Error(t, err)
}

func TestNest(t *testing.T) {
	got := nest(map[string]any{"a.b": 1, "a.c": "x", "d": true})
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": 1, "c": "x"},
		"d": true,
	}, got)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c": "x", "d": true}, flatten(got, ""))
}
