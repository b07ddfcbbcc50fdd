// Package mcp provides an MCP (Model Context Protocol) server adapter for sazid.
// It lets MCP clients retrieve ingested context and run the registered tools
// under the same validation as chat sessions.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
