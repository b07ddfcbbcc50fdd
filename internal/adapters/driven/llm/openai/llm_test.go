package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *CompletionService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewCompletionService(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	return svc
}

func TestNewCompletionService_RequiresAPIKey(t *testing.T) {
	_, err := NewCompletionService(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestComplete_SendsToolsAndParsesToolCalls(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "search", req.Tools[0].Function.Name)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function",
			"function":{"name":"search","arguments":"{\"pattern\":\"foo\",\"options\":\"-i,-n\"}"}}]},
			"finish_reason":"tool_calls"}]}`))
	})

	reply, err := svc.Complete(t.Context(), []driven.ChatMessage{
		{Role: domain.RoleSystem, Content: "be helpful"},
		{Role: domain.RoleUser, Content: "find foo"},
	}, driven.CompletionOptions{
		Model: "gpt-4o-mini",
		Tools: []driven.ToolSpec{{Name: "search", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.Empty(t, reply.Content)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_1", reply.ToolCalls[0].ID)
	assert.Equal(t, map[string]string{"pattern": "foo", "options": "-i,-n"}, reply.ToolCalls[0].Arguments)
}

func TestComplete_RoundTripsToolMessages(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role       string  `json:"role"`
				Content    *string `json:"content"`
				ToolCallID string  `json:"tool_call_id"`
				ToolCalls  []struct {
					Function struct {
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Nil(t, req.Messages[0].Content)
		assert.JSONEq(t, `{"pattern":"foo"}`, req.Messages[0].ToolCalls[0].Function.Arguments)
		assert.Equal(t, "call_1", req.Messages[1].ToolCallID)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	})

	reply, err := svc.Complete(t.Context(), []driven.ChatMessage{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "search", Arguments: map[string]string{"pattern": "foo"}}}},
		{Role: domain.RoleTool, ToolCallID: "call_1", Content: `{"status":"success"}`},
	}, driven.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Content)
}

func TestComplete_ProviderError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	})

	_, err := svc.Complete(t.Context(), nil, driven.CompletionOptions{})
	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.True(t, perr.Temporary())
}

func TestComplete_ContextLength(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"too long","code":"context_length_exceeded"}}`))
	})

	_, err := svc.Complete(t.Context(), nil, driven.CompletionOptions{})
	assert.ErrorIs(t, err, domain.ErrContextLength)
}

func TestPing(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, svc.Ping(t.Context()))
	assert.Equal(t, DefaultModel, svc.ModelName())
}
