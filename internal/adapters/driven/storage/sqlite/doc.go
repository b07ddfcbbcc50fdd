// Package sqlite provides a unified SQLite-based implementation of the
// vector and session store ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements two store interfaces
// through a single database connection:
//
//   - VectorStore: Chunk, tag and embedding persistence with similarity search
//   - SessionStore: Session and message persistence
//
// # Similarity Search
//
// Chunk and message embeddings are each indexed by an in-process HNSW graph.
// A background goroutine per graph drains a queue of newly committed rows;
// rows not yet in the graph sit in a pending set that queries scan exactly,
// so every committed row is visible to queries while the graph catches up.
// The graphs are rebuilt from the database when the store opens.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.sazid/data/sazid.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Deletes race with background indexing only in that a
// deleted id may linger in a graph; such ids are dropped when hits are loaded.
package sqlite
