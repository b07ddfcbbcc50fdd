package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorStore = (*vectorStore)(nil)

type vectorStore struct {
	store *Store
}

const chunkColumns = `c.id, c.content, c.checksum, COALESCE(c.source_path, ''), c.position, c.page_number,
	c.embedding, c.created_at,
	ARRAY(SELECT t.name FROM chunk_tags ct JOIN tags t ON t.id = ct.tag_id
	      WHERE ct.chunk_id = c.id ORDER BY t.name)`

// Upsert inserts a chunk unless its checksum is already stored.
func (v *vectorStore) Upsert(ctx context.Context, chunk *domain.Chunk) (bool, error) {
	n, err := v.UpsertBatch(ctx, []domain.Chunk{*chunk})
	return n == 1, err
}

// UpsertBatch inserts chunks in one transaction. Chunks whose checksum is
// already stored still join their source.
func (v *vectorStore) UpsertBatch(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		if err := v.store.checkDimensions(chunks[i].Embedding); err != nil {
			return 0, err
		}
	}

	tx, err := v.store.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for i := range chunks {
		c := &chunks[i]
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		var source *string
		if c.SourcePath != "" {
			source = &c.SourcePath
		}
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO chunks (id, content, checksum, source_path, position, page_number, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (checksum) DO NOTHING
			RETURNING id
		`, c.ID, c.Content, c.Checksum, source, c.Position, c.PageNumber, pgvector.NewVector(c.Embedding), c.CreatedAt).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := tx.QueryRow(ctx, "SELECT id FROM chunks WHERE checksum = $1", c.Checksum).Scan(&id); err != nil {
				return 0, unavailable("resolving stored chunk", err)
			}
		case err != nil:
			return 0, unavailable("inserting chunk", err)
		default:
			inserted++
		}

		if source != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO chunk_sources (chunk_id, source_path, position, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING
			`, id, c.SourcePath, c.Position, c.CreatedAt); err != nil {
				return 0, unavailable("recording chunk source", err)
			}
		}
		if err := attachTags(ctx, tx, id, c.Tags); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("committing chunks", err)
	}
	return inserted, nil
}

func attachTags(ctx context.Context, tx pgx.Tx, chunkID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	tags = sortedTags(tags)
	if _, err := tx.Exec(ctx, `
		INSERT INTO tags (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING
	`, tags); err != nil {
		return unavailable("inserting tags", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO chunk_tags (chunk_id, tag_id)
		SELECT $1, id FROM tags WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`, chunkID, tags); err != nil {
		return unavailable("tagging chunk", err)
	}
	return nil
}

// QuerySimilar orders by distance using the HNSW index. A tag filter is
// applied in SQL; when the index scan yields fewer than k rows the query
// is repeated as an exact scan.
func (v *vectorStore) QuerySimilar(ctx context.Context, query []float32, k int, tags []string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := v.store.checkDimensions(query); err != nil {
		return nil, err
	}

	sql := `SELECT ` + chunkColumns + `, ` + v.store.distance + ` AS distance FROM chunks c`
	args := []any{pgvector.NewVector(query), k}
	if len(tags) > 0 {
		sql += ` WHERE EXISTS (
			SELECT 1 FROM chunk_tags ct JOIN tags t ON t.id = ct.tag_id
			WHERE ct.chunk_id = c.id AND t.name = ANY($3))`
		args = append(args, tags)
	}
	sql += ` ORDER BY c.embedding ` + operator(v.store.metric) + ` $1, c.id LIMIT $2`

	results, err := v.queryChunks(ctx, v.store.pool, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 || len(results) >= k {
		return results, nil
	}

	tx, err := v.store.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("beginning exact scan", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if _, err := tx.Exec(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
		return nil, unavailable("disabling index scan", err)
	}
	return v.queryChunks(ctx, tx, sql, args...)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (v *vectorStore) queryChunks(ctx context.Context, q querier, sql string, args ...any) ([]domain.ScoredChunk, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("querying chunks", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		var emb pgvector.Vector
		c := &sc.Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Checksum, &c.SourcePath, &c.Position, &c.PageNumber,
			&emb, &c.CreatedAt, &c.Tags, &sc.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = emb.Slice()
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating chunks", err)
	}
	return out, nil
}

// operator is the ordering operator the HNSW index accelerates.
func operator(metric domain.DistanceMetric) string {
	switch metric {
	case domain.DistanceL2:
		return "<->"
	case domain.DistanceDot:
		return "<#>"
	default:
		return "<=>"
	}
}

// DeleteBySource drops a source's membership and deletes the chunks no
// other source references. It returns the number of chunks the source held.
func (v *vectorStore) DeleteBySource(ctx context.Context, sourcePath string) (int, error) {
	tx, err := v.store.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		"DELETE FROM chunk_sources WHERE source_path = $1 RETURNING chunk_id", sourcePath)
	if err != nil {
		return 0, unavailable("deleting chunk sources", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, unavailable("reading chunk sources", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM chunks c WHERE c.id = ANY($1)
		AND NOT EXISTS (SELECT 1 FROM chunk_sources cs WHERE cs.chunk_id = c.id)
	`, ids); err != nil {
		return 0, unavailable("deleting chunks", err)
	}
	// Shared chunks report the earliest remaining source.
	if _, err := tx.Exec(ctx, `
		UPDATE chunks c SET source_path = first.source_path, position = first.position
		FROM (
			SELECT DISTINCT ON (chunk_id) chunk_id, source_path, position FROM chunk_sources
			WHERE chunk_id = ANY($1)
			ORDER BY chunk_id, created_at, source_path
		) first
		WHERE c.id = first.chunk_id AND c.source_path = $2
	`, ids, sourcePath); err != nil {
		return 0, unavailable("reassigning shared chunks", err)
	}
	if err := deleteUnusedTags(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("committing delete", err)
	}
	return len(ids), nil
}

// DeleteByChecksum removes one chunk from every source.
func (v *vectorStore) DeleteByChecksum(ctx context.Context, checksum string) (int, error) {
	tx, err := v.store.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, "DELETE FROM chunks WHERE checksum = $1", checksum)
	if err != nil {
		return 0, unavailable("deleting chunks", err)
	}
	if err := deleteUnusedTags(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("committing delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func deleteUnusedTags(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM tags t WHERE NOT EXISTS (SELECT 1 FROM chunk_tags ct WHERE ct.tag_id = t.id)
	`); err != nil {
		return unavailable("deleting unused tags", err)
	}
	return nil
}

// SourceChecksums returns checksums for a source in position order,
// including chunks another source stored first.
func (v *vectorStore) SourceChecksums(ctx context.Context, sourcePath string) ([]string, error) {
	rows, err := v.store.pool.Query(ctx, `
		SELECT c.checksum FROM chunk_sources cs JOIN chunks c ON c.id = cs.chunk_id
		WHERE cs.source_path = $1 ORDER BY cs.position, c.id
	`, sourcePath)
	if err != nil {
		return nil, unavailable("querying checksums", err)
	}
	sums, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("reading checksums", err)
	}
	return sums, nil
}

// ListSources summarises stored sources ordered by path.
func (v *vectorStore) ListSources(ctx context.Context) ([]domain.SourceInfo, error) {
	rows, err := v.store.pool.Query(ctx, `
		SELECT source_path, COUNT(*), MAX(created_at) FROM chunk_sources
		GROUP BY source_path ORDER BY source_path
	`)
	if err != nil {
		return nil, unavailable("querying sources", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SourceInfo, error) {
		var info domain.SourceInfo
		err := row.Scan(&info.Path, &info.Chunks, &info.IngestedAt)
		return info, err
	})
	if err != nil {
		return nil, unavailable("reading sources", err)
	}
	return out, nil
}

// Tags lists tags ordered by name.
func (v *vectorStore) Tags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := v.store.pool.Query(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, unavailable("querying tags", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Tag, error) {
		var t domain.Tag
		err := row.Scan(&t.ID, &t.Name)
		return t, err
	})
	if err != nil {
		return nil, unavailable("reading tags", err)
	}
	return out, nil
}

// Stats reports row counts. The database indexes synchronously.
func (v *vectorStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{Metric: v.store.metric, Dimensions: v.store.dimensions}
	err := v.store.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM chunks), (SELECT COUNT(*) FROM messages),
		       (SELECT COUNT(*) FROM tags), (SELECT COUNT(*) FROM sessions)
	`).Scan(&stats.Chunks, &stats.Messages, &stats.Tags, &stats.Sessions)
	if err != nil {
		return nil, unavailable("counting rows", err)
	}
	return stats, nil
}

// Dimensions returns the embedding size.
func (v *vectorStore) Dimensions() int {
	return v.store.dimensions
}

// Metric returns the distance metric.
func (v *vectorStore) Metric() domain.DistanceMetric {
	return v.store.metric
}

// Close closes the shared pool.
func (v *vectorStore) Close() error {
	return v.store.Close()
}

func sortedTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}
