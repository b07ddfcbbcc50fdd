package services

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/storage/memory"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

const testDims = 16

// bagEmbedder hashes words into a normalised bag-of-words vector, so
// identical texts embed identically and shared words pull texts together.
type bagEmbedder struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	err     error
}

var _ driven.EmbeddingService = (*bagEmbedder)(nil)

func (e *bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagVector(t)
	}
	return out, nil
}

func (e *bagEmbedder) Dimensions() int            { return testDims }
func (e *bagEmbedder) ModelName() string          { return "bag" }
func (e *bagEmbedder) Ping(context.Context) error { return nil }
func (e *bagEmbedder) Close() error               { return nil }

func (e *bagEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func bagVector(text string) []float32 {
	v := make([]float32, testDims)
	v[0] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDims]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// scriptedCompletion answers with queued replies and records every request.
type scriptedCompletion struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []completionRequest
	block    chan struct{}
}

type scriptedReply struct {
	msg *driven.ChatMessage
	err error
}

type completionRequest struct {
	messages []driven.ChatMessage
	opts     driven.CompletionOptions
}

var _ driven.CompletionService = (*scriptedCompletion)(nil)

func (s *scriptedCompletion) reply(content string) *scriptedCompletion {
	s.replies = append(s.replies, scriptedReply{msg: &driven.ChatMessage{Role: domain.RoleAssistant, Content: content}})
	return s
}

func (s *scriptedCompletion) call(calls ...domain.ToolCall) *scriptedCompletion {
	s.replies = append(s.replies, scriptedReply{msg: &driven.ChatMessage{Role: domain.RoleAssistant, ToolCalls: calls}})
	return s
}

func (s *scriptedCompletion) fail(err error) *scriptedCompletion {
	s.replies = append(s.replies, scriptedReply{err: err})
	return s
}

func (s *scriptedCompletion) Complete(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (*driven.ChatMessage, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, completionRequest{
		messages: append([]driven.ChatMessage(nil), messages...),
		opts:     opts,
	})
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.msg, r.err
}

func (s *scriptedCompletion) ModelName() string          { return "scripted" }
func (s *scriptedCompletion) Ping(context.Context) error { return nil }
func (s *scriptedCompletion) Close() error               { return nil }

func (s *scriptedCompletion) recorded() []completionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completionRequest(nil), s.requests...)
}

// stubTools answers every dispatch with a fixed result.
type stubTools struct {
	mu          sync.Mutex
	invocations []domain.ToolInvocation
	result      *domain.ToolResult
}

func (t *stubTools) Definitions() []domain.ToolDefinition { return nil }

func (t *stubTools) Dispatch(ctx context.Context, inv domain.ToolInvocation) (*domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invocations = append(t.invocations, inv)
	return t.result, nil
}

func newMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(testDims, domain.DistanceCosine)
	require.NoError(t, err)
	return store
}
