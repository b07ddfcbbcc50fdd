package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/logger"
	"github.com/cosmikwolf/sazid/internal/tools"
)

// RetrieveToolName is the MCP tool answering similarity queries.
const RetrieveToolName = "retrieve"

// defaultRetrieveK is used when the client does not ask for a count.
const defaultRetrieveK = 5

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query string   `json:"query" jsonschema:"text to find similar ingested content for"`
	K     int      `json:"k,omitempty" jsonschema:"maximum number of chunks to return (default 5)"`
	Tags  []string `json:"tags,omitempty" jsonschema:"only return chunks carrying any of these tags"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

// ChunkOutput represents a single retrieved chunk.
type ChunkOutput struct {
	Source   string   `json:"source"`
	Position int      `json:"position"`
	Distance float64  `json:"distance"`
	Tags     []string `json:"tags,omitempty"`
	Content  string   `json:"content"`
}

// registerTools registers retrieve and every registry tool.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        RetrieveToolName,
		Description: "Find ingested project content similar to a query",
	}, s.handleRetrieve)
	s.tools = append(s.tools, RetrieveToolName)

	if s.ports.Tools == nil {
		return
	}
	for _, def := range s.ports.Tools.Definitions() {
		if slices.Contains(s.tools, def.Name) {
			logger.Warn("mcp: tool %q shadows a built-in MCP tool and is not exposed", def.Name)
			continue
		}
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: tools.JSONSchema(def),
		}, s.dispatchHandler(def.Name))
		s.tools = append(s.tools, def.Name)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	k := input.K
	if k <= 0 {
		k = defaultRetrieveK
	}

	results, err := s.ports.Retrieval.Retrieve(ctx, input.Query, k, input.Tags)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Results: make([]ChunkOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		c := results[i].Chunk
		output.Results[i] = ChunkOutput{
			Source:   c.SourcePath,
			Position: c.Position,
			Distance: results[i].Distance,
			Tags:     c.Tags,
			Content:  c.Content,
		}
	}
	return nil, output, nil
}

// dispatchHandler runs a registry tool through the dispatcher. Rejections
// and failures are tool errors the client can read, not protocol errors.
func (s *Server) dispatchHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := tools.DecodeArguments(raw)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		result, err := s.ports.Tools.Dispatch(ctx, domain.ToolInvocation{
			ID:        uuid.New().String(),
			Tool:      name,
			Arguments: args,
		})
		if err != nil {
			return nil, err
		}
		return toolResult(result), nil
	}
}

func toolResult(r *domain.ToolResult) *mcp.CallToolResult {
	text := r.Stdout
	if !r.OK() {
		text = describeFailure(r)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: r,
		IsError:           !r.OK(),
	}
}

func describeFailure(r *domain.ToolResult) string {
	switch {
	case r.Reason != "" && r.Stderr != "":
		return fmt.Sprintf("%s\n%s", r.Reason, r.Stderr)
	case r.Reason != "":
		return r.Reason
	case r.Stderr != "":
		return r.Stderr
	default:
		return string(r.Kind)
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
