package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/tools"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestServer_handleStatsResource(t *testing.T) {
	retrieval := &mockRetrievalService{stats: &domain.StoreStats{
		Chunks:        12,
		Tags:          2,
		PendingChunks: 1,
		Metric:        domain.DistanceCosine,
		Dimensions:    768,
	}}
	server, err := NewServer(&Ports{Retrieval: retrieval})
	require.NoError(t, err)

	result, err := server.handleStatsResource(context.Background(), readRequest("sazid://stats"))
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "sazid://stats", result.Contents[0].URI)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &got))
	assert.Equal(t, float64(12), got["chunks"])
	assert.Equal(t, float64(1), got["pending_chunks"])
	assert.Equal(t, "cosine", got["metric"])
	assert.Equal(t, float64(768), got["dimensions"])
}

func TestServer_handleStatsResource_Error(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{err: errors.New("offline")}})
	require.NoError(t, err)

	_, err = server.handleStatsResource(context.Background(), readRequest("sazid://stats"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}

func TestServer_handleSourcesResource(t *testing.T) {
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ingest := &mockIngestService{sources: []domain.SourceInfo{
		{Path: "main.go", Chunks: 3, IngestedAt: when},
	}}
	server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Ingest: ingest})
	require.NoError(t, err)

	result, err := server.handleSourcesResource(context.Background(), readRequest("sazid://sources"))
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "main.go", got[0]["path"])
	assert.Equal(t, float64(3), got[0]["chunks"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got[0]["ingested_at"])
}

func TestServer_handleToolsResource(t *testing.T) {
	svc := &mockToolService{definitions: tools.Builtins()}
	server, err := NewServer(&Ports{Retrieval: &mockRetrievalService{}, Tools: svc})
	require.NoError(t, err)

	result, err := server.handleToolsResource(context.Background(), readRequest("sazid://tools"))
	require.NoError(t, err)

	var got []struct {
		Name    string         `json:"name"`
		Kind    string         `json:"kind"`
		Program string         `json:"program"`
		Schema  map[string]any `json:"schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &got))
	require.Len(t, got, len(tools.Builtins()))
	assert.Equal(t, tools.SearchToolName, got[0].Name)
	assert.Equal(t, "grep", got[0].Program)
	assert.Equal(t, "object", got[0].Schema["type"])
}
