package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cosmikwolf/sazid/internal/tools"
)

// uriScheme is the custom URI scheme for sazid resources.
const uriScheme = "sazid://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Chunk, message and index counters of the store",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	if s.ports.Ingest != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "sources",
			Name:        "sources",
			Description: "Ingested sources with their chunk counts",
			MIMEType:    "application/json",
		}, s.handleSourcesResource)
	}

	if s.ports.Tools != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "tools",
			Name:        "tools",
			Description: "Registered tool definitions and their parameter policies",
			MIMEType:    "application/json",
		}, s.handleToolsResource)
	}
}

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Retrieval.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	type statsInfo struct {
		Chunks          int    `json:"chunks"`
		Messages        int    `json:"messages"`
		Tags            int    `json:"tags"`
		Sessions        int    `json:"sessions"`
		PendingChunks   int    `json:"pending_chunks"`
		PendingMessages int    `json:"pending_messages"`
		Metric          string `json:"metric"`
		Dimensions      int    `json:"dimensions"`
	}
	return jsonResource(req, statsInfo{
		Chunks:          stats.Chunks,
		Messages:        stats.Messages,
		Tags:            stats.Tags,
		Sessions:        stats.Sessions,
		PendingChunks:   stats.PendingChunks,
		PendingMessages: stats.PendingMessages,
		Metric:          stats.Metric.String(),
		Dimensions:      stats.Dimensions,
	})
}

// handleSourcesResource returns every ingested source.
func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sources, err := s.ports.Ingest.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	type sourceInfo struct {
		Path       string `json:"path"`
		Chunks     int    `json:"chunks"`
		IngestedAt string `json:"ingested_at"`
	}
	infos := make([]sourceInfo, len(sources))
	for i, src := range sources {
		infos[i] = sourceInfo{
			Path:       src.Path,
			Chunks:     src.Chunks,
			IngestedAt: src.IngestedAt.UTC().Format(time.RFC3339),
		}
	}
	return jsonResource(req, infos)
}

func (s *Server) handleToolsResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	type toolInfo struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Kind        string         `json:"kind"`
		Program     string         `json:"program"`
		Schema      map[string]any `json:"schema"`
	}

	defs := s.ports.Tools.Definitions()
	infos := make([]toolInfo, len(defs))
	for i := range defs {
		infos[i] = toolInfo{
			Name:        defs[i].Name,
			Description: defs[i].Description,
			Kind:        string(defs[i].Kind),
			Program:     defs[i].Program,
			Schema:      tools.JSONSchema(defs[i]),
		}
	}
	return jsonResource(req, infos)
}

func jsonResource(req *mcp.ReadResourceRequest, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
