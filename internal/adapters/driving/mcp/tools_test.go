package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/tools"
)

func TestServer_handleRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("returns retrieved chunks", func(t *testing.T) {
		retrieval := &mockRetrievalService{
			results: []domain.ScoredChunk{{
				Chunk: domain.Chunk{
					SourcePath: "docs/zoo.md",
					Position:   3,
					Tags:       []string{"animals"},
					Content:    "the quick brown fox",
				},
				Distance: 0.02,
			}},
		}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "fox", K: 1, Tags: []string{"animals"}})
		require.NoError(t, err)

		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		assert.Equal(t, ChunkOutput{
			Source:   "docs/zoo.md",
			Position: 3,
			Distance: 0.02,
			Tags:     []string{"animals"},
			Content:  "the quick brown fox",
		}, output.Results[0])
		assert.Equal(t, "fox", retrieval.query)
		assert.Equal(t, 1, retrieval.k)
		assert.Equal(t, []string{"animals"}, retrieval.tags)
	})

	t.Run("default k", func(t *testing.T) {
		retrieval := &mockRetrievalService{}
		server, err := NewServer(&Ports{Retrieval: retrieval})
		require.NoError(t, err)

		_, output, err := server.handleRetrieve(ctx, nil, RetrieveInput{Query: "fox"})
		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, defaultRetrieveK, retrieval.k)
	})

	t.Run("returns error on retrieval failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{err: errors.New("store offline")}})
		require.NoError(t, err)

		_, _, err = server.handleRetrieve(ctx, nil, RetrieveInput{Query: "fox"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store offline")
	})
}

func callRequest(args string) *mcp.CallToolRequest {
	return &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Name:      tools.SearchToolName,
		Arguments: json.RawMessage(args),
	}}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_dispatchHandler(t *testing.T) {
	ctx := context.Background()
	newServer := func(t *testing.T, svc *mockToolService) *Server {
		t.Helper()
		svc.definitions = []domain.ToolDefinition{tools.SearchTool()}
		server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Tools: svc})
		require.NoError(t, err)
		return server
	}

	t.Run("success returns stdout", func(t *testing.T) {
		svc := &mockToolService{result: &domain.ToolResult{Status: domain.StatusSuccess, Stdout: "1:Hello\n"}}
		handler := newServer(t, svc).dispatchHandler(tools.SearchToolName)

		result, err := handler(ctx, callRequest(`{"pattern":"hello","options":["-i","-n"]}`))
		require.NoError(t, err)

		assert.False(t, result.IsError)
		assert.Equal(t, "1:Hello\n", textOf(t, result))
		require.Len(t, svc.invocations, 1)
		inv := svc.invocations[0]
		assert.Equal(t, tools.SearchToolName, inv.Tool)
		assert.NotEmpty(t, inv.ID)
		assert.Equal(t, map[string]string{"pattern": "hello", "options": "-i,-n"}, inv.Arguments)
	})

	t.Run("rejection is a tool error", func(t *testing.T) {
		svc := &mockToolService{result: domain.Rejected(`option "-z" is not allowed`)}
		handler := newServer(t, svc).dispatchHandler(tools.SearchToolName)

		result, err := handler(ctx, callRequest(`{"pattern":"x","options":"-z"}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, `option "-z" is not allowed`, textOf(t, result))
	})

	t.Run("failure includes stderr", func(t *testing.T) {
		svc := &mockToolService{result: &domain.ToolResult{
			Status: domain.StatusFailure,
			Kind:   domain.KindExecutionFailed,
			Reason: "exit status 2",
			Stderr: "grep: bad regex",
		}}
		handler := newServer(t, svc).dispatchHandler(tools.SearchToolName)

		result, err := handler(ctx, callRequest(`{"pattern":"("}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "exit status 2\ngrep: bad regex", textOf(t, result))
	})

	t.Run("malformed arguments never dispatch", func(t *testing.T) {
		svc := &mockToolService{}
		handler := newServer(t, svc).dispatchHandler(tools.SearchToolName)

		result, err := handler(ctx, callRequest(`{"pattern":{"nested":true}}`))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Empty(t, svc.invocations)
	})

	t.Run("cancellation is a protocol error", func(t *testing.T) {
		svc := &mockToolService{err: context.Canceled}
		handler := newServer(t, svc).dispatchHandler(tools.SearchToolName)

		_, err := handler(ctx, callRequest(`{}`))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDescribeFailure(t *testing.T) {
	assert.Equal(t, "reason", describeFailure(&domain.ToolResult{Reason: "reason"}))
	assert.Equal(t, "stderr", describeFailure(&domain.ToolResult{Stderr: "stderr"}))
	assert.Equal(t, string(domain.KindExecutionTimedOut),
		describeFailure(&domain.ToolResult{Kind: domain.KindExecutionTimedOut}))
}
