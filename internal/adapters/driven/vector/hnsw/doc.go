// Package hnsw provides an in-process Hierarchical Navigable Small World
// graph for approximate nearest neighbour search.
// It implements the driven.VectorIndex interface.
//
// The index is memory-resident and rebuilt from the owning store on startup.
// Deleted vectors are tombstoned: they still route searches but are never
// returned.
package hnsw
