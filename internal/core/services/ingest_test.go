package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/storage/memory"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newIngest(t *testing.T, root string) (*IngestService, *bagEmbedder, *memory.Store) {
	t.Helper()
	store := newMemoryStore(t)
	embedder := &bagEmbedder{}
	svc, err := NewIngestService(store.VectorStore(), embedder, chunker.New(chunker.WithMaxTokens(8)), root)
	require.NoError(t, err)
	return svc, embedder, store
}

func TestIngestService_IngestPath_Tree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "docs/readme.md", "the quick brown fox jumps over the lazy dog")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/x.js", "module.exports = 1")
	writeFile(t, root, "logo.png", "\x89PNG\x00\x00")

	svc, _, store := newIngest(t, root)
	ctx := context.Background()

	report, err := svc.IngestPath(ctx, ".", []string{"code"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Unchanged)
	assert.Equal(t, report.Chunks, report.Inserted)
	assert.Positive(t, report.Inserted)

	sources, err := svc.Sources(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Path)
	}
	assert.Equal(t, []string{"docs/readme.md", "main.go"}, names)

	tags, err := store.VectorStore().Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "code", tags[0].Name)
}

func TestIngestService_IngestPath_UnchangedIsNoop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha beta gamma delta epsilon")
	svc, embedder, _ := newIngest(t, root)
	ctx := context.Background()

	_, err := svc.IngestPath(ctx, "a.txt", nil)
	require.NoError(t, err)
	calls := embedder.callCount()

	report, err := svc.IngestPath(ctx, "a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, calls, embedder.callCount(), "unchanged files are not re-embedded")
}

func TestIngestService_IngestPath_ChangedReplaces(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.txt", "alpha beta gamma delta epsilon")
	svc, _, store := newIngest(t, root)
	ctx := context.Background()

	first, err := svc.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	writeFile(t, root, "a.txt", "zeta eta")
	report, err := svc.IngestPath(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Inserted, report.Purged)
	assert.Equal(t, 1, report.Inserted)

	checksums, err := store.VectorStore().SourceChecksums(ctx, "a.txt")
	require.NoError(t, err)
	assert.Len(t, checksums, 1)
}

func TestIngestService_IngestPath_Missing(t *testing.T) {
	svc, _, _ := newIngest(t, t.TempDir())

	_, err := svc.IngestPath(context.Background(), "nope.txt", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestService_IngestText(t *testing.T) {
	svc, _, store := newIngest(t, t.TempDir())
	ctx := context.Background()

	report, err := svc.IngestText(ctx, "the quick brown fox", "note:fox", []string{"animals"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	results, err := store.VectorStore().QuerySimilar(ctx, bagVector("the quick brown fox"), 1, []string{"animals"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "note:fox", results[0].Chunk.SourcePath)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)

	_, err = svc.IngestText(ctx, "text", " ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestService_EmbeddingFailureAborts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	svc, embedder, store := newIngest(t, root)
	embedder.err = domain.NewError(domain.KindEmbeddingUnavailable, "provider down", nil)

	_, err := svc.IngestPath(context.Background(), root, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	stats, err := store.VectorStore().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestIngestService_Purge(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "sub/a.txt", "alpha beta gamma delta epsilon")
	svc, _, _ := newIngest(t, root)
	ctx := context.Background()

	report, err := svc.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	n, err := svc.Purge(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, report.Inserted, n)

	n, err = svc.Purge(ctx, "sub/a.txt")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestService_SharedContentAcrossSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha beta gamma delta epsilon")
	writeFile(t, root, "b.txt", "alpha beta gamma delta epsilon")
	svc, embedder, store := newIngest(t, root)
	ctx := context.Background()
	vs := store.VectorStore()

	first, err := svc.IngestPath(ctx, "a.txt", nil)
	require.NoError(t, err)
	second, err := svc.IngestPath(ctx, "b.txt", nil)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted, "b.txt only repeats stored chunks")

	aSums, err := vs.SourceChecksums(ctx, "a.txt")
	require.NoError(t, err)
	bSums, err := vs.SourceChecksums(ctx, "b.txt")
	require.NoError(t, err)
	require.NotEmpty(t, bSums)
	assert.Equal(t, aSums, bSums)

	calls := embedder.callCount()
	again, err := svc.IngestPath(ctx, "b.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Unchanged)
	assert.Zero(t, again.Purged)
	assert.Equal(t, calls, embedder.callCount(), "b.txt is not re-embedded")

	n, err := svc.Purge(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, first.Inserted, n)

	bSums, err = vs.SourceChecksums(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, aSums, bSums)

	stats, err := vs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(bSums), stats.Chunks)

	sources, err := svc.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "b.txt", sources[0].Path)
}

func TestIngestService_SourceName(t *testing.T) {
	root := t.TempDir()
	svc, _, _ := newIngest(t, root)

	assert.Equal(t, "a/b.go", svc.SourceName(filepath.Join(root, "a", "b.go")))
	assert.Equal(t, "a/b.go", svc.SourceName("a/b.go"))
	outside := filepath.Join(filepath.Dir(root), "elsewhere.txt")
	assert.Equal(t, filepath.ToSlash(outside), svc.SourceName(outside))
}

func TestSameChecksums(t *testing.T) {
	chunks := []domain.Chunk{{Checksum: "b"}, {Checksum: "a"}, {Checksum: "b"}}

	assert.True(t, sameChecksums([]string{"a", "b"}, chunks))
	assert.False(t, sameChecksums([]string{"a"}, chunks))
	assert.False(t, sameChecksums(nil, chunks))
	assert.True(t, sameChecksums(nil, nil))
}

type upperNormaliser struct{}

func (upperNormaliser) Extensions() []string { return []string{".UP"} }

func (upperNormaliser) Normalise(_ string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.NewError(domain.KindChunkingError, "empty", nil)
	}
	return strings.ToUpper(string(data)), nil
}

func TestIngestService_Normalisers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.up", "shout this")
	writeFile(t, root, "empty.up", "")
	store := newMemoryStore(t)
	svc, err := NewIngestService(store.VectorStore(), &bagEmbedder{}, chunker.New(), root,
		WithNormalisers(upperNormaliser{}))
	require.NoError(t, err)

	report, err := svc.IngestPath(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Skipped)

	results, err := store.VectorStore().QuerySimilar(context.Background(), bagVector("SHOUT THIS"), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SHOUT THIS", results[0].Chunk.Content)
}
