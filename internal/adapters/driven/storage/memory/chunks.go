package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorStore = (*vectorStore)(nil)

type vectorStore struct {
	store *Store
}

// Upsert inserts a chunk unless its checksum is already stored.
func (v *vectorStore) Upsert(ctx context.Context, chunk *domain.Chunk) (bool, error) {
	n, err := v.UpsertBatch(ctx, []domain.Chunk{*chunk})
	return n == 1, err
}

// membership records a chunk's place in one source.
type membership struct {
	position int
	addedAt  time.Time
}

// UpsertBatch inserts all new chunks or none. Chunks whose checksum is
// already stored still join their source.
func (v *vectorStore) UpsertBatch(_ context.Context, chunks []domain.Chunk) (int, error) {
	s := v.store
	for i := range chunks {
		if chunks[i].Checksum == "" {
			return 0, fmt.Errorf("%w: chunk without checksum", domain.ErrInvalidInput)
		}
		if err := s.checkDimensions(chunks[i].Embedding); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, s.failure
	}

	inserted := 0
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		stored, exists := s.chunks[c.Checksum]
		if exists {
			stored.Tags = append(slices.Clone(stored.Tags), c.Tags...)
		} else {
			stored = cloneChunk(c)
			inserted++
		}
		slices.Sort(stored.Tags)
		stored.Tags = slices.Compact(stored.Tags)
		for _, tag := range stored.Tags {
			if _, ok := s.tags[tag]; !ok {
				s.nextTagID++
				s.tags[tag] = s.nextTagID
			}
		}
		s.chunks[c.Checksum] = stored

		if c.SourcePath == "" {
			continue
		}
		members, ok := s.sources[c.SourcePath]
		if !ok {
			members = make(map[string]membership)
			s.sources[c.SourcePath] = members
		}
		if _, ok := members[c.Checksum]; !ok {
			members[c.Checksum] = membership{position: c.Position, addedAt: c.CreatedAt}
		}
	}
	return inserted, nil
}

// QuerySimilar scans every chunk.
func (v *vectorStore) QuerySimilar(_ context.Context, query []float32, k int, tags []string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	s := v.store
	if err := s.checkDimensions(query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	var results []domain.ScoredChunk
	for _, c := range s.chunks {
		if len(tags) > 0 && !slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(c.Tags, t) }) {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: cloneChunk(c), Distance: s.dist(query, c.Embedding)})
	}
	sortChunks(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteBySource drops a source's membership and deletes the chunks no
// other source references. It returns the number of chunks the source held.
func (v *vectorStore) DeleteBySource(_ context.Context, sourcePath string) (int, error) {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, s.failure
	}

	members := s.sources[sourcePath]
	delete(s.sources, sourcePath)
	for sum := range members {
		c, ok := s.chunks[sum]
		if !ok {
			continue
		}
		if next, ok := s.firstSource(sum); ok {
			if c.SourcePath == sourcePath {
				c.SourcePath = next
				c.Position = s.sources[next][sum].position
				s.chunks[sum] = c
			}
			continue
		}
		delete(s.chunks, sum)
	}
	s.dropUnusedTags()
	return len(members), nil
}

// DeleteByChecksum removes one chunk from every source.
func (v *vectorStore) DeleteByChecksum(_ context.Context, checksum string) (int, error) {
	s := v.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return 0, s.failure
	}

	if _, ok := s.chunks[checksum]; !ok {
		return 0, nil
	}
	delete(s.chunks, checksum)
	for path, members := range s.sources {
		delete(members, checksum)
		if len(members) == 0 {
			delete(s.sources, path)
		}
	}
	s.dropUnusedTags()
	return 1, nil
}

// firstSource returns the earliest-joined source still holding checksum.
func (s *Store) firstSource(checksum string) (string, bool) {
	var (
		best  string
		at    time.Time
		found bool
	)
	for path, members := range s.sources {
		m, ok := members[checksum]
		if !ok {
			continue
		}
		if !found || m.addedAt.Before(at) || (m.addedAt.Equal(at) && path < best) {
			best, at, found = path, m.addedAt, true
		}
	}
	return best, found
}

func (s *Store) dropUnusedTags() {
	used := make(map[string]bool)
	for _, c := range s.chunks {
		for _, t := range c.Tags {
			used[t] = true
		}
	}
	for t := range s.tags {
		if !used[t] {
			delete(s.tags, t)
		}
	}
}

// SourceChecksums returns checksums for a source in position order.
func (v *vectorStore) SourceChecksums(_ context.Context, sourcePath string) ([]string, error) {
	s := v.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	members := s.sources[sourcePath]
	out := make([]string, 0, len(members))
	for sum := range members {
		out = append(out, sum)
	}
	slices.SortFunc(out, func(a, b string) int {
		if d := members[a].position - members[b].position; d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return out, nil
}

// ListSources summarises stored sources ordered by path.
func (v *vectorStore) ListSources(_ context.Context) ([]domain.SourceInfo, error) {
	s := v.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	out := make([]domain.SourceInfo, 0, len(s.sources))
	for path, members := range s.sources {
		info := domain.SourceInfo{Path: path, Chunks: len(members)}
		for _, m := range members {
			if m.addedAt.After(info.IngestedAt) {
				info.IngestedAt = m.addedAt
			}
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b domain.SourceInfo) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Tags lists tags ordered by name.
func (v *vectorStore) Tags(_ context.Context) ([]domain.Tag, error) {
	s := v.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}

	out := make([]domain.Tag, 0, len(s.tags))
	for name, id := range s.tags {
		out = append(out, domain.Tag{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b domain.Tag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Stats reports counters. Nothing is ever pending.
func (v *vectorStore) Stats(_ context.Context) (*domain.StoreStats, error) {
	s := v.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, s.failure
	}
	return &domain.StoreStats{
		Chunks:     len(s.chunks),
		Messages:   len(s.messageIDs),
		Tags:       len(s.tags),
		Sessions:   len(s.sessions),
		Metric:     s.metric,
		Dimensions: s.dimensions,
	}, nil
}

// Dimensions returns the embedding size.
func (v *vectorStore) Dimensions() int {
	return v.store.dimensions
}

// Metric returns the distance metric.
func (v *vectorStore) Metric() domain.DistanceMetric {
	return v.store.metric
}

// Close is a no-op.
func (v *vectorStore) Close() error {
	return nil
}
