// Package domain defines the core business entities for sazid.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Chunk: A bounded segment of text paired with its embedding
//   - Session: A conversation owning an ordered sequence of Messages
//   - ToolDefinition: A named, schema-validated command the model may invoke
//   - ToolInvocation / ToolResult: One requested tool call and its outcome
//   - Error: The tagged error taxonomy shared by every component
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
