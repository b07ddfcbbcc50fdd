package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_TypedGetters(t *testing.T) {
	s := NewConfigStore()
	require.NoError(t, s.Set("llm.model", "gpt-4o"))
	require.NoError(t, s.Set("chat.retrieval_k", int64(7)))
	require.NoError(t, s.Set("embedding.requests_per_second", 2.5))
	require.NoError(t, s.Set("tools.timeout", "45s"))
	require.NoError(t, s.Set("watch.enabled", true))
	require.NoError(t, s.Set("tags", []any{"go", 3, "docs"}))

	assert.Equal(t, "gpt-4o", s.GetString("llm.model"))
	assert.Equal(t, 7, s.GetInt("chat.retrieval_k"))
	assert.InDelta(t, 2.5, s.GetFloat("embedding.requests_per_second"), 1e-9)
	assert.Equal(t, 45*time.Second, s.GetDuration("tools.timeout"))
	assert.True(t, s.GetBool("watch.enabled"))
	assert.Equal(t, []string{"go", "docs"}, s.GetStringSlice("tags"))

	assert.Empty(t, s.GetString("missing"))
	assert.Zero(t, s.GetInt("llm.model"))
	assert.Zero(t, s.GetDuration("llm.model"))
}
