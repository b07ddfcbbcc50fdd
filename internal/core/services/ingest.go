package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/ports/driving"
	"github.com/cosmikwolf/sazid/internal/logger"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultSkipDirs are never descended into when walking a tree.
var DefaultSkipDirs = []string{".git", ".hg", ".svn", "node_modules"}

// IngestService turns files and text into embedded, tagged chunks.
type IngestService struct {
	store     driven.VectorStore
	embedder  driven.EmbeddingService
	processor *chunker.Processor
	root      string
	skipDirs  []string

	// normalisers by lower-case extension
	normalisers map[string]driven.Normaliser
}

// IngestOption configures an IngestService.
type IngestOption func(*IngestService)

// WithSkipDirs replaces the directory names skipped while walking.
func WithSkipDirs(names ...string) IngestOption {
	return func(s *IngestService) {
		s.skipDirs = names
	}
}

// WithNormalisers converts matching files to text before chunking.
func WithNormalisers(ns ...driven.Normaliser) IngestOption {
	return func(s *IngestService) {
		for _, n := range ns {
			for _, ext := range n.Extensions() {
				s.normalisers[strings.ToLower(ext)] = n
			}
		}
	}
}

// NewIngestService creates an ingest service. Source paths under root are
// stored relative to it.
func NewIngestService(
	store driven.VectorStore,
	embedder driven.EmbeddingService,
	processor *chunker.Processor,
	root string,
	opts ...IngestOption,
) (*IngestService, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve ingest root: %w", err)
	}
	if processor == nil {
		processor = chunker.New()
	}
	s := &IngestService{
		store:     store,
		embedder:  embedder,
		processor: processor,
		root:      abs,
		skipDirs:  DefaultSkipDirs,

		normalisers: make(map[string]driven.Normaliser),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute directory that relative source names resolve against.
func (s *IngestService) Root() string {
	return s.root
}

// IngestPath ingests a file, or every text file beneath a directory.
// Changed files replace their previous chunks; unchanged files are left alone.
func (s *IngestService) IngestPath(ctx context.Context, path string, tags []string) (*driving.IngestReport, error) {
	abs := s.resolve(path)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}

	report := &driving.IngestReport{}
	if !info.IsDir() {
		if err := s.ingestFile(ctx, abs, tags, report); err != nil {
			return report, err
		}
		return report, nil
	}

	logger.Section("Ingesting " + abs)
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("skip %s: %v", p, walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != abs && slices.Contains(s.skipDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return s.ingestFile(ctx, p, tags, report)
	})
	if err != nil {
		return report, err
	}

	logger.Info("ingested %d files: %d unchanged, %d skipped, %d chunks inserted",
		report.Files, report.Unchanged, report.Skipped, report.Inserted)
	return report, nil
}

// IngestText ingests a text body under the given source name.
func (s *IngestService) IngestText(ctx context.Context, text, source string, tags []string) (*driving.IngestReport, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}
	report := &driving.IngestReport{Files: 1}
	if err := s.ingestContent(ctx, source, text, tags, report); err != nil {
		return report, err
	}
	return report, nil
}

// Purge removes every chunk of a source. Paths are normalised the same way
// IngestPath stores them.
func (s *IngestService) Purge(ctx context.Context, source string) (int, error) {
	name := source
	if filepath.IsAbs(source) {
		name = s.SourceName(source)
	}
	n, err := s.store.DeleteBySource(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", name, err)
	}
	logger.Debug("purged %d chunks of %s", n, name)
	return n, nil
}

// Sources lists ingested sources.
func (s *IngestService) Sources(ctx context.Context) ([]domain.SourceInfo, error) {
	return s.store.ListSources(ctx)
}

// SourceName maps a file path to the name its chunks are stored under:
// slash-separated and relative to the root when inside it.
func (s *IngestService) SourceName(path string) string {
	abs := s.resolve(path)
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (s *IngestService) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

func (s *IngestService) ingestFile(ctx context.Context, path string, tags []string, report *driving.IngestReport) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			report.Skipped++
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	if n, ok := s.normalisers[strings.ToLower(filepath.Ext(path))]; ok {
		content, err = n.Normalise(path, data)
		if err != nil {
			logger.Warn("skip %s: %v", path, err)
			report.Skipped++
			return nil
		}
	} else if !chunker.IsText(data) {
		logger.Debug("skip binary file %s", path)
		report.Skipped++
		return nil
	}
	report.Files++
	return s.ingestContent(ctx, s.SourceName(path), content, tags, report)
}

func (s *IngestService) ingestContent(
	ctx context.Context, source, content string, tags []string, report *driving.IngestReport,
) error {
	chunks, err := s.processor.Process(source, content, tags)
	if err != nil {
		return err
	}
	report.Chunks += len(chunks)

	stored, err := s.store.SourceChecksums(ctx, source)
	if err != nil {
		return fmt.Errorf("load checksums of %s: %w", source, err)
	}
	if sameChecksums(stored, chunks) {
		report.Unchanged++
		return nil
	}

	if len(stored) > 0 {
		n, err := s.store.DeleteBySource(ctx, source)
		if err != nil {
			return fmt.Errorf("replace %s: %w", source, err)
		}
		report.Purged += n
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", source, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	inserted, err := s.store.UpsertBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("store %s: %w", source, err)
	}
	report.Inserted += inserted
	logger.Debug("ingested %s: %d chunks, %d new", source, len(chunks), inserted)
	return nil
}

// sameChecksums compares as sets since duplicate chunk text is stored once.
func sameChecksums(stored []string, chunks []domain.Chunk) bool {
	if len(stored) == 0 {
		return len(chunks) == 0
	}
	fresh := make([]string, 0, len(chunks))
	for i := range chunks {
		fresh = append(fresh, chunks[i].Checksum)
	}
	a := slices.Compact(slices.Sorted(slices.Values(stored)))
	b := slices.Compact(slices.Sorted(slices.Values(fresh)))
	return slices.Equal(a, b)
}
