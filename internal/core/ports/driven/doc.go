// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - VectorStore: Chunk persistence and similarity search (SQLite or PostgreSQL)
//   - SessionStore: Session and message persistence
//   - CommandExecutor: Spawns validated tool processes
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, retrieval is disabled.
//   - CompletionService: Model completions. Without it, chat is disabled.
//   - VectorIndex: In-process ANN index used by the SQLite store.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driven
