// Package memory provides in-memory vector and session stores. Queries
// are exact scans; the stores are meant for tests and throwaway sessions.
package memory

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/vector/hnsw"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Store holds chunks, sessions and messages in maps guarded by one lock.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	metric     domain.DistanceMetric
	dist       hnsw.DistanceFunc

	chunks     map[string]domain.Chunk          // by checksum
	sources    map[string]map[string]membership // source path -> checksum
	tags       map[string]int64
	nextTagID  int64
	sessions   map[string]domain.Session
	messages   map[string][]domain.Message // by session, in order
	messageIDs map[string]string           // message id -> session id

	// failure, when set, is returned by every operation.
	failure error
}

// NewStore creates an empty store for vectors of the given dimension.
// The metric defaults to cosine.
func NewStore(dimensions int, metric domain.DistanceMetric) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}
	if metric == "" {
		metric = domain.DistanceCosine
	}
	dist, err := hnsw.Distance(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return &Store{
		dimensions: dimensions,
		metric:     metric,
		dist:       dist,
		chunks:     make(map[string]domain.Chunk),
		sources:    make(map[string]map[string]membership),
		tags:       make(map[string]int64),
		sessions:   make(map[string]domain.Session),
		messages:   make(map[string][]domain.Message),
		messageIDs: make(map[string]string),
	}, nil
}

// VectorStore returns the chunk store view.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// SessionStore returns the session store view.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// SetFailure makes every subsequent operation fail with a
// StoreUnavailable error wrapping err. A nil err restores the store.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failure = nil
		return
	}
	s.failure = domain.NewError(domain.KindStoreUnavailable, "memory store offline", err)
}

func (s *Store) checkDimensions(vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("%w: embedding has dimension %d, store expects %d",
			domain.ErrInvalidInput, len(vec), s.dimensions)
	}
	return nil
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	c.Embedding = slices.Clone(c.Embedding)
	c.Tags = slices.Clone(c.Tags)
	if c.PageNumber != nil {
		n := *c.PageNumber
		c.PageNumber = &n
	}
	return c
}

func cloneMessage(m domain.Message) domain.Message {
	m.Embedding = slices.Clone(m.Embedding)
	if m.ToolCalls != nil {
		calls := make([]domain.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			tc.Arguments = maps.Clone(tc.Arguments)
			calls[i] = tc
		}
		m.ToolCalls = calls
	}
	return m
}

func sortChunks(results []domain.ScoredChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}
