package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/checksum"
	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// setupTestStore connects to SAZID_TEST_POSTGRES_DSN. The schema is
// dropped before and after each test.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SAZID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SAZID_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := NewStore(ctx, Config{DSN: dsn, Dimensions: 3, Metric: domain.DistanceL2})
	require.NoError(t, err)
	require.NoError(t, s.DropSchema(ctx))
	s.Close()

	s, err = NewStore(ctx, Config{DSN: dsn, Dimensions: 3, Metric: domain.DistanceL2})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.DropSchema(context.Background())
		s.Close()
	})
	return s
}

func testChunk(content, source string, pos int, vec []float32, tags ...string) domain.Chunk {
	return domain.Chunk{
		ID:         uuid.NewString(),
		Content:    content,
		Checksum:   checksum.String(content),
		SourcePath: source,
		Position:   pos,
		Embedding:  vec,
		Tags:       tags,
	}
}

func TestOperators(t *testing.T) {
	for _, m := range domain.AllDistanceMetrics() {
		dist, opclass, err := operators(m)
		require.NoError(t, err)
		assert.Contains(t, dist, operator(m))
		assert.NotEmpty(t, opclass)
	}
	_, _, err := operators("hamming")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(t.Context(), Config{Dimensions: 3})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewStore(t.Context(), Config{DSN: "postgres://localhost/x", Dimensions: 0})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestVectorStore_Integration(t *testing.T) {
	s := setupTestStore(t)
	vs := s.VectorStore()
	ctx := t.Context()

	n, err := vs.UpsertBatch(ctx, []domain.Chunk{
		testChunk("the quick brown fox", "a.txt", 0, []float32{1, 0, 0}, "animals"),
		testChunk("lazy dog", "a.txt", 1, []float32{0.9, 0.1, 0}, "animals"),
		testChunk("red car", "b.txt", 0, []float32{0, 1, 0}, "vehicles"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dup := testChunk("red car", "c.txt", 0, []float32{0, 1, 0})
	inserted, err := vs.Upsert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	hits, err := vs.QuerySimilar(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "the quick brown fox", hits[0].Chunk.Content)
	assert.InDelta(t, 0.02, hits[1].Distance, 1e-6)

	hits, err = vs.QuerySimilar(ctx, []float32{1, 0, 0}, 3, []string{"vehicles"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"vehicles"}, hits[0].Chunk.Tags)

	sums, err := vs.SourceChecksums(ctx, "a.txt")
	require.NoError(t, err)
	assert.Len(t, sums, 2)

	purged, err := vs.DeleteBySource(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	tags, err := vs.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "vehicles", tags[0].Name)

	stats, err := vs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 0, stats.PendingChunks)
}

func TestVectorStore_SharedChunkSurvivesSourcePurge(t *testing.T) {
	s := setupTestStore(t)
	vs := s.VectorStore()
	ctx := t.Context()

	_, err := vs.UpsertBatch(ctx, []domain.Chunk{
		testChunk("shared", "a.txt", 0, []float32{1, 0, 0}),
		testChunk("only a", "a.txt", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)
	n, err := vs.UpsertBatch(ctx, []domain.Chunk{
		testChunk("shared", "b.txt", 0, []float32{1, 0, 0}),
		testChunk("only b", "b.txt", 1, []float32{0, 0, 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want := []string{checksum.String("shared"), checksum.String("only b")}
	sums, err := vs.SourceChecksums(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, want, sums)

	purged, err := vs.DeleteBySource(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	sums, err = vs.SourceChecksums(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, want, sums)

	hits, err := vs.QuerySimilar(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.txt", hits[0].Chunk.SourcePath)

	sources, err := vs.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, 2, sources[0].Chunks)
}

func TestStore_RejectsChangedDimensions(t *testing.T) {
	setupTestStore(t)
	_, err := NewStore(t.Context(), Config{
		DSN:        os.Getenv("SAZID_TEST_POSTGRES_DSN"),
		Dimensions: 4,
		Metric:     domain.DistanceL2,
	})
	require.Error(t, err)
}

func TestSessionStore_Integration(t *testing.T) {
	s := setupTestStore(t)
	ss := s.SessionStore()
	ctx := t.Context()

	session := &domain.Session{ID: uuid.NewString(), Config: domain.SessionConfig{Model: "llama3.2", Tags: []string{"go"}}}
	require.NoError(t, ss.CreateSession(ctx, session))
	assert.ErrorIs(t, ss.CreateSession(ctx, session), domain.ErrAlreadyExists)

	loaded, err := ss.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", loaded.Config.Model)
	assert.Equal(t, []string{"go"}, loaded.Config.Tags)

	first := domain.Message{ID: uuid.NewString(), Role: domain.RoleUser, Content: "hi", Embedding: []float32{1, 0, 0}}
	require.NoError(t, ss.AppendMessages(ctx, session.ID, []domain.Message{
		first,
		{ID: uuid.NewString(), Role: domain.RoleAssistant, Content: "hello", ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "search", Arguments: map[string]string{"pattern": "x"}},
		}},
	}))

	err = ss.AppendMessages(ctx, session.ID, []domain.Message{
		{ID: uuid.NewString(), Role: domain.RoleUser, Content: "lost"},
		first,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	msgs, err := ss.Messages(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "search", msgs[1].ToolCalls[0].Name)

	hits, err := ss.QuerySimilarMessages(ctx, session.ID, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, first.ID, hits[0].Message.ID)

	require.NoError(t, ss.DeleteSession(ctx, session.ID))
	assert.ErrorIs(t, ss.DeleteSession(ctx, session.ID), domain.ErrNotFound)
}
