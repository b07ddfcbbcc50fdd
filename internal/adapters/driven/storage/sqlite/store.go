package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cosmikwolf/sazid/internal/adapters/driven/vector/hnsw"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// DefaultOversample multiplies k for graph searches that are filtered
// after the fact (by tag or by session).
const DefaultOversample = 4

// Config holds store configuration.
type Config struct {
	// DataDir holds the database file (default: ~/.sazid/data).
	DataDir string

	// Dimensions is the embedding size (required). Fixed at creation.
	Dimensions int

	// Metric is the distance metric (default: cosine). Fixed at creation.
	Metric domain.DistanceMetric

	// Oversample multiplies k for filtered graph searches.
	Oversample int

	// Index tunes the HNSW graphs. Dimension and Metric are overridden.
	Index hnsw.Config
}

// Store is a unified SQLite-based storage that provides access to
// the vector and session store interfaces through wrapper types.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
	metric     domain.DistanceMetric
	oversample int
	chunks     *backgroundIndex
	messages   *backgroundIndex
}

// NewStore opens or creates the store and starts background indexing of
// every stored embedding.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, domain.NewError(domain.KindConfiguration, "sqlite: embedding dimensions must be positive", nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.DistanceCosine
	}
	if !cfg.Metric.IsValid() {
		return nil, domain.Errorf(domain.KindConfiguration, "sqlite: unsupported metric %q", cfg.Metric)
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = DefaultOversample
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sazid", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sazid.db")

	// WAL for concurrent readers; foreign keys on every pooled connection.
	// Transactions take the write lock up front so concurrent writers wait
	// on busy_timeout instead of failing a lock upgrade.
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		dimensions: cfg.Dimensions,
		metric:     cfg.Metric,
		oversample: cfg.Oversample,
	}

	if err := s.migrate(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.checkMeta(); err != nil {
		db.Close()
		return nil, err
	}

	indexCfg := cfg.Index
	indexCfg.Dimension = cfg.Dimensions
	indexCfg.Metric = cfg.Metric

	if s.chunks, err = newBackgroundIndex("chunk", indexCfg); err != nil {
		db.Close()
		return nil, err
	}
	if s.messages, err = newBackgroundIndex("message", indexCfg); err != nil {
		s.chunks.close()
		db.Close()
		return nil, err
	}

	if err := s.loadIndexes(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Close stops background indexing and closes the database connection.
func (s *Store) Close() error {
	if s.chunks != nil {
		s.chunks.close()
	}
	if s.messages != nil {
		s.messages.close()
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// VectorStore returns a VectorStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// SessionStore returns a SessionStore interface backed by this store.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// WaitIndexed blocks until every committed embedding is in its graph.
func (s *Store) WaitIndexed(ctx context.Context) error {
	if err := s.chunks.wait(ctx); err != nil {
		return err
	}
	return s.messages.wait(ctx)
}

// migrate applies the numbered *.up.sql files newer than the recorded
// schema version, each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	slices.Sort(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(version, string(script)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		logger.Debug("sqlite: applied migration %s", name)
	}
	return nil
}

func (s *Store) applyMigration(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// checkMeta records the dimension and metric on first open and rejects
// a configuration that disagrees with them afterwards.
func (s *Store) checkMeta() error {
	want := map[string]string{
		"dimensions": strconv.Itoa(s.dimensions),
		"metric":     string(s.metric),
	}
	for key, value := range want {
		var stored string
		err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := s.db.Exec("INSERT INTO store_meta (key, value) VALUES (?, ?)", key, value); err != nil {
				return fmt.Errorf("recording %s: %w", key, err)
			}
		case err != nil:
			return fmt.Errorf("reading %s: %w", key, err)
		case stored != value:
			return domain.Errorf(domain.KindConfiguration,
				"sqlite: store was created with %s %s, configured %s", key, stored, value)
		}
	}
	return nil
}

// loadIndexes queues every stored embedding for the background graphs.
func (s *Store) loadIndexes(ctx context.Context) error {
	load := func(query string, idx *backgroundIndex) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("loading %s embeddings: %w", idx.name, err)
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				return fmt.Errorf("scanning %s embedding: %w", idx.name, err)
			}
			idx.enqueue(id, bytesToFloat32Slice(blob))
			n++
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating %s embeddings: %w", idx.name, err)
		}
		logger.Debug("queued %d %s embeddings for indexing", n, idx.name)
		return nil
	}

	if err := load("SELECT id, embedding FROM chunks", s.chunks); err != nil {
		return err
	}
	return load("SELECT id, embedding FROM messages WHERE embedding IS NOT NULL", s.messages)
}

// unavailable classifies a database failure. Context errors pass through
// so that aborts are not mistaken for outages.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewError(domain.KindStoreUnavailable, op, err)
}

func (s *Store) checkDimensions(vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("%w: embedding has dimension %d, store expects %d",
			domain.ErrInvalidInput, len(vec), s.dimensions)
	}
	return nil
}
