// Package postgres implements the vector and session store ports on
// PostgreSQL with the pgvector extension.
//
// Embeddings live in vector(n) columns indexed with HNSW; the database
// builds and maintains the graphs, so nothing is ever pending. The
// operator class follows the configured metric, which together with the
// dimension is fixed when the schema is first created.
//
// Connections come from a pgxpool.Pool. The vector type is registered on
// every pooled connection.
package postgres
