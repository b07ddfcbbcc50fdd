package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// DefaultOversample multiplies k for session-filtered message searches.
const DefaultOversample = 4

// Config holds store configuration.
type Config struct {
	// DSN is a libpq connection string or URL (required).
	DSN string

	// Dimensions is the embedding size (required). Fixed at creation.
	Dimensions int

	// Metric is the distance metric (default: cosine). Fixed at creation.
	Metric domain.DistanceMetric

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32

	// EfSearch sets hnsw.ef_search on every connection when positive.
	EfSearch int
}

// Store provides the vector and session stores over one connection pool.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     domain.DistanceMetric
	distance   string // SQL distance expression over embedding and $1
	opclass    string
}

// NewStore connects, creates the schema if needed and checks that the
// stored dimension and metric match the configuration.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, domain.NewError(domain.KindConfiguration, "postgres: DSN is required", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, domain.NewError(domain.KindConfiguration, "postgres: embedding dimensions must be positive", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.DistanceCosine
	}
	distance, opclass, err := operators(cfg.Metric)
	if err != nil {
		return nil, err
	}

	// The vector type must exist before pooled connections register it.
	if err := createExtension(ctx, cfg.DSN); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "postgres: parse DSN", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
			return err
		}
		if cfg.EfSearch > 0 {
			_, err := conn.Exec(ctx, "SET hnsw.ef_search = "+strconv.Itoa(cfg.EfSearch))
			return err
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, unavailable("connecting", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("connecting", err)
	}

	s := &Store{
		pool:       pool,
		dimensions: cfg.Dimensions,
		metric:     cfg.Metric,
		distance:   distance,
		opclass:    opclass,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.checkMeta(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Debug("postgres store ready (dimensions=%d, metric=%s)", s.dimensions, s.metric)
	return s, nil
}

// operators maps a metric onto pgvector's distance operator and HNSW
// operator class. pgvector's <-> is plain Euclidean, so it is squared to
// agree with the in-process metric.
func operators(metric domain.DistanceMetric) (distance, opclass string, err error) {
	switch metric {
	case domain.DistanceL2:
		return "power(embedding <-> $1, 2)", "vector_l2_ops", nil
	case domain.DistanceDot:
		return "(embedding <#> $1)", "vector_ip_ops", nil
	case domain.DistanceCosine:
		return "(embedding <=> $1)", "vector_cosine_ops", nil
	default:
		return "", "", domain.Errorf(domain.KindConfiguration, "postgres: unsupported metric %q", metric)
	}
}

func createExtension(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return unavailable("connecting", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return domain.NewError(domain.KindConfiguration, "postgres: pgvector extension unavailable", err)
	}
	return nil
}

// VectorStore returns the chunk store view.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// SessionStore returns the session store view.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// DropSchema removes every table. Used by integration tests.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS messages, sessions, chunk_tags, chunk_sources, tags, chunks, store_meta CASCADE
	`)
	return err
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("beginning migration", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent first opens.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext('sazid_schema'))"); err != nil {
		return unavailable("locking schema", err)
	}
	for _, stmt := range schema(s.dimensions, s.opclass) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("committing migration", err)
	}
	return nil
}

func schema(dim int, opclass string) []string {
	vec := "vector(" + strconv.Itoa(dim) + ")"
	return []string{
		`CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			content     TEXT NOT NULL,
			checksum    TEXT NOT NULL UNIQUE,
			source_path TEXT,
			position    INTEGER NOT NULL DEFAULT 0,
			page_number INTEGER,
			embedding   ` + vec + ` NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source_path ON chunks (source_path)`,
		`CREATE TABLE IF NOT EXISTS chunk_sources (
			chunk_id    TEXT NOT NULL REFERENCES chunks (id) ON DELETE CASCADE,
			source_path TEXT NOT NULL,
			position    INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chunk_id, source_path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_sources_source_path ON chunk_sources (source_path, position)`,
		`INSERT INTO chunk_sources (chunk_id, source_path, position, created_at)
			SELECT id, source_path, position, created_at FROM chunks WHERE source_path IS NOT NULL
			ON CONFLICT DO NOTHING`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding ` + opclass + `)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id   BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_tags (
			chunk_id TEXT NOT NULL REFERENCES chunks (id) ON DELETE CASCADE,
			tag_id   BIGINT NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
			PRIMARY KEY (chunk_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_tags_tag ON chunk_tags (tag_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			config     JSONB NOT NULL DEFAULT '{}',
			summary    TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'tool')),
			payload    JSONB NOT NULL,
			embedding  ` + vec + `,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_embedding ON messages USING hnsw (embedding ` + opclass + `)`,
	}
}

// checkMeta records the dimension and metric on first open and rejects
// a configuration that disagrees with them afterwards.
func (s *Store) checkMeta(ctx context.Context) error {
	want := map[string]string{
		"dimensions": strconv.Itoa(s.dimensions),
		"metric":     string(s.metric),
	}
	for key, value := range want {
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO store_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING", key, value); err != nil {
			return unavailable("recording "+key, err)
		}
		var stored string
		if err := s.pool.QueryRow(ctx, "SELECT value FROM store_meta WHERE key = $1", key).Scan(&stored); err != nil {
			return unavailable("reading "+key, err)
		}
		if stored != value {
			return domain.Errorf(domain.KindConfiguration,
				"postgres: store was created with %s %s, configured %s", key, stored, value)
		}
	}
	return nil
}

func (s *Store) checkDimensions(vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("%w: embedding has dimension %d, store expects %d",
			domain.ErrInvalidInput, len(vec), s.dimensions)
	}
	return nil
}

// unavailable classifies a database failure. Context errors pass through.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewError(domain.KindStoreUnavailable, "postgres: "+op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
