package mcp

import (
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval answers similarity queries.
	Retrieval driving.RetrievalService

	// Tools exposes the tool registry. Optional.
	Tools driving.ToolService

	// Ingest lists ingested sources. Optional.
	Ingest driving.IngestService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
