package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

const chunkColumns = `c.id, c.content, c.checksum, c.source_path, c.position, c.page_number, c.embedding, c.created_at`

// Upsert inserts a chunk unless its checksum is already stored.
func (s *vectorStore) Upsert(ctx context.Context, chunk *domain.Chunk) (bool, error) {
	n, err := s.UpsertBatch(ctx, []domain.Chunk{*chunk})
	return n == 1, err
}

// UpsertBatch inserts chunks in one transaction, skipping known checksums.
// Every chunk with a source path is recorded as a member of that source,
// including chunks whose checksum another source already stored.
func (s *vectorStore) UpsertBatch(ctx context.Context, chunks []domain.Chunk) (int, error) {
	for i := range chunks {
		if err := s.store.checkDimensions(chunks[i].Embedding); err != nil {
			return 0, err
		}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	staged := s.store.chunks.stage()
	defer staged.discard()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, checksum, source_path, position, page_number, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checksum) DO NOTHING
	`)
	if err != nil {
		return 0, unavailable("preparing statement", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range chunks {
		c := &chunks[i]
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		res, err := stmt.ExecContext(ctx, c.ID, c.Content, c.Checksum, nullString(c.SourcePath),
			c.Position, nullInt(c.PageNumber), float32SliceToBytes(c.Embedding), formatTime(createdAt))
		if err != nil {
			return 0, unavailable("saving chunk", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, unavailable("saving chunk", err)
		}

		id := c.ID
		if affected == 0 {
			if err := tx.QueryRowContext(ctx, "SELECT id FROM chunks WHERE checksum = ?", c.Checksum).Scan(&id); err != nil {
				return 0, unavailable("resolving stored chunk", err)
			}
		} else {
			staged.add(id, c.Embedding)
			inserted++
		}

		if c.SourcePath != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO chunk_sources (chunk_id, source_path, position, created_at)
				VALUES (?, ?, ?, ?)
			`, id, c.SourcePath, c.Position, formatTime(createdAt)); err != nil {
				return 0, unavailable("recording chunk source", err)
			}
		}
		if err := attachTags(ctx, tx, id, c.Tags); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("committing transaction", err)
	}
	staged.keep()
	return inserted, nil
}

func attachTags(ctx context.Context, tx *sql.Tx, chunkID string, tags []string) error {
	for _, name := range tags {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
			return unavailable("saving tag", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chunk_tags (chunk_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, chunkID, name); err != nil {
			return unavailable("tagging chunk", err)
		}
	}
	return nil
}

// QuerySimilar returns the k closest chunks, optionally restricted to chunks
// carrying any of tags.
func (s *vectorStore) QuerySimilar(ctx context.Context, query []float32, k int, tags []string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := s.store.checkDimensions(query); err != nil {
		return nil, err
	}

	fetch := k
	if len(tags) > 0 {
		fetch = k * s.store.oversample
	}

	candidates, err := s.store.chunks.search(query, fetch)
	if err != nil {
		return nil, fmt.Errorf("searching chunk index: %w", err)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	loaded, err := s.loadChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ScoredChunk, 0, len(loaded))
	for i := range loaded {
		if !hasAnyTag(loaded[i].Tags, tags) {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: loaded[i], Distance: candidates[loaded[i].ID]})
	}

	if len(results) < k || len(loaded) < len(ids) {
		// The graph may hold fewer than k matches for a selective filter
		// or a small corpus. Ids without a visible row belong to writes
		// still in flight and may hide the true nearest. Either way fall
		// back to an exact scan.
		results, err = s.exactScan(ctx, query, tags)
		if err != nil {
			return nil, err
		}
	}

	sortScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *vectorStore) exactScan(ctx context.Context, query []float32, tags []string) ([]domain.ScoredChunk, error) {
	q := "SELECT " + chunkColumns + " FROM chunks c"
	var args []any
	if len(tags) > 0 {
		q += ` WHERE c.id IN (
			SELECT ct.chunk_id FROM chunk_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE t.name IN (` + placeholders(len(tags)) + `))`
		for _, t := range tags {
			args = append(args, t)
		}
	}

	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("scanning chunks", err)
	}
	defer rows.Close()

	dist := s.store.chunks.dist
	var results []domain.ScoredChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.ScoredChunk{Chunk: *c, Distance: dist(query, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating chunks", err)
	}

	ids := make([]string, len(results))
	for i := range results {
		ids[i] = results[i].Chunk.ID
	}
	tagMap, err := s.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Chunk.Tags = tagMap[results[i].Chunk.ID]
	}
	return results, nil
}

// loadChunks fetches chunks by id with their tags. Unknown ids are skipped.
func (s *vectorStore) loadChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks c WHERE c.id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, unavailable("querying chunks", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating chunks", err)
	}

	tagMap, err := s.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Tags = tagMap[chunks[i].ID]
	}
	return chunks, nil
}

func (s *vectorStore) tagsFor(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT ct.chunk_id, t.name FROM chunk_tags ct JOIN tags t ON t.id = ct.tag_id
		WHERE ct.chunk_id IN (`+placeholders(len(ids))+`)
		ORDER BY t.name
	`, args...)
	if err != nil {
		return nil, unavailable("querying tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		out[id] = append(out[id], name)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating tags", err)
	}
	return out, nil
}

// DeleteBySource removes a source's membership of its chunks and deletes the
// chunks no other source references. It returns the number of chunks the
// source held.
func (s *vectorStore) DeleteBySource(ctx context.Context, sourcePath string) (int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	members, err := selectIDs(ctx, tx, "SELECT chunk_id FROM chunk_sources WHERE source_path = ?", sourcePath)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_sources WHERE source_path = ?", sourcePath); err != nil {
		return 0, unavailable("deleting chunk sources", err)
	}

	args := make([]any, len(members))
	for i, id := range members {
		args[i] = id
	}
	in := "(" + placeholders(len(members)) + ")"
	orphans, err := selectIDs(ctx, tx, `
		SELECT id FROM chunks WHERE id IN `+in+`
		AND id NOT IN (SELECT chunk_id FROM chunk_sources)
	`, args...)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks WHERE id IN `+in+`
		AND id NOT IN (SELECT chunk_id FROM chunk_sources)
	`, args...); err != nil {
		return 0, unavailable("deleting chunks", err)
	}
	// Shared chunks report the earliest remaining source.
	if _, err := tx.ExecContext(ctx, `
		UPDATE chunks SET
			source_path = (SELECT cs.source_path FROM chunk_sources cs WHERE cs.chunk_id = chunks.id
				ORDER BY cs.created_at, cs.source_path LIMIT 1),
			position = (SELECT cs.position FROM chunk_sources cs WHERE cs.chunk_id = chunks.id
				ORDER BY cs.created_at, cs.source_path LIMIT 1)
		WHERE id IN `+in+` AND source_path = ?
	`, append(args, sourcePath)...); err != nil {
		return 0, unavailable("reassigning shared chunks", err)
	}
	if err := deleteUnusedTags(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("committing transaction", err)
	}

	s.store.chunks.remove(orphans)
	return len(members), nil
}

// DeleteByChecksum removes the chunk with the given checksum from every
// source.
func (s *vectorStore) DeleteByChecksum(ctx context.Context, checksum string) (int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids, err := selectIDs(ctx, tx, "SELECT id FROM chunks WHERE checksum = ?", checksum)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	// chunk_sources and chunk_tags rows cascade.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE checksum = ?", checksum); err != nil {
		return 0, unavailable("deleting chunks", err)
	}
	if err := deleteUnusedTags(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("committing transaction", err)
	}

	s.store.chunks.remove(ids)
	return len(ids), nil
}

// Tags live only while referenced.
func deleteUnusedTags(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM chunk_tags)"); err != nil {
		return unavailable("deleting unreferenced tags", err)
	}
	return nil
}

// SourceChecksums returns the checksums of a source's chunks in position
// order, including chunks first stored by another source.
func (s *vectorStore) SourceChecksums(ctx context.Context, sourcePath string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.checksum FROM chunk_sources cs JOIN chunks c ON c.id = cs.chunk_id
		WHERE cs.source_path = ? ORDER BY cs.position
	`, sourcePath)
	if err != nil {
		return nil, unavailable("querying checksums", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sum string
		if err := rows.Scan(&sum); err != nil {
			return nil, fmt.Errorf("scanning checksum: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating checksums", err)
	}
	return out, nil
}

// ListSources summarises stored sources.
func (s *vectorStore) ListSources(ctx context.Context) ([]domain.SourceInfo, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source_path, COUNT(*), MAX(created_at) FROM chunk_sources
		GROUP BY source_path ORDER BY source_path
	`)
	if err != nil {
		return nil, unavailable("querying sources", err)
	}
	defer rows.Close()

	var out []domain.SourceInfo
	for rows.Next() {
		var info domain.SourceInfo
		var ingested sql.NullString
		if err := rows.Scan(&info.Path, &info.Chunks, &ingested); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		info.IngestedAt = parseTime(ingested.String)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating sources", err)
	}
	return out, nil
}

// Tags lists tags in use.
func (s *vectorStore) Tags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, unavailable("querying tags", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating tags", err)
	}
	return out, nil
}

// Stats reports store counters.
func (s *vectorStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{
		PendingChunks:   s.store.chunks.pendingCount(),
		PendingMessages: s.store.messages.pendingCount(),
		Metric:          s.store.metric,
		Dimensions:      s.store.dimensions,
	}
	err := s.store.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM sessions)
	`).Scan(&stats.Chunks, &stats.Messages, &stats.Tags, &stats.Sessions)
	if err != nil {
		return nil, unavailable("counting rows", err)
	}
	return stats, nil
}

// Dimensions returns the configured embedding size.
func (s *vectorStore) Dimensions() int {
	return s.store.dimensions
}

// Metric returns the fixed distance metric.
func (s *vectorStore) Metric() domain.DistanceMetric {
	return s.store.metric
}

// Close closes the underlying store.
func (s *vectorStore) Close() error {
	return s.store.Close()
}

func hasAnyTag(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

func sortScored(results []domain.ScoredChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}
