// Package chunker splits text into token-bounded chunks for embedding
// and for model context windows.
package chunker

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cosmikwolf/sazid/internal/checksum"
	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// DefaultMaxTokens is the default token budget per chunk.
const DefaultMaxTokens = 512

// Segment is one chunk with its byte offsets in the source text.
// Text is always content[Start:End].
type Segment struct {
	Text   string
	Start  int
	End    int
	Tokens int
}

// EstimateTokens approximates the model token count of a single word
// at four characters per token. Every word costs at least one token.
func EstimateTokens(word string) int {
	n := (utf8.RuneCountInString(word) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}

// CountTokens approximates the model token count of text.
func CountTokens(text string) int {
	total := 0
	for _, w := range strings.Fields(text) {
		total += EstimateTokens(w)
	}
	return total
}

// Segments splits content into whitespace-delimited words and packs them
// into chunks of at most maxTokens. Words are never split: a word whose own
// cost exceeds maxTokens becomes a single oversized chunk.
//
// Whitespace between chunks belongs to neither neighbour, so the original
// content is recovered by reinserting content[prev.End:next.Start].
func Segments(content string, maxTokens int) ([]Segment, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", domain.ErrInvalidInput, maxTokens)
	}
	if !utf8.ValidString(content) {
		return nil, domain.NewError(domain.KindChunkingError, "content is not valid UTF-8 text", nil)
	}

	var (
		segments []Segment
		cur      Segment
		open     bool
	)

	flush := func() {
		if open {
			cur.Text = content[cur.Start:cur.End]
			segments = append(segments, cur)
			open = false
		}
	}

	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		start := i
		for i < len(content) {
			r, size = utf8.DecodeRuneInString(content[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		cost := EstimateTokens(content[start:i])

		if open && cur.Tokens+cost > maxTokens {
			flush()
		}
		if !open {
			cur = Segment{Start: start}
			open = true
		}
		cur.End = i
		cur.Tokens += cost
	}
	flush()

	return segments, nil
}

// Split returns the chunk texts of content. Empty or all-whitespace content
// yields an empty result.
func Split(content string, maxTokens int) ([]string, error) {
	segments, err := Segments(content, maxTokens)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(segments))
	for i := range segments {
		out[i] = segments[i].Text
	}
	return out, nil
}

// Processor turns a source's text into domain chunks.
type Processor struct {
	maxTokens int
	now       func() time.Time
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxTokens sets the token budget per chunk.
func WithMaxTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxTokens: DefaultMaxTokens,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MaxTokens returns the configured budget.
func (p *Processor) MaxTokens() int {
	return p.maxTokens
}

// Process chunks content from sourcePath. The returned chunks carry ids,
// checksums, positions and tags but no embeddings.
func (p *Processor) Process(sourcePath, content string, tags []string) ([]domain.Chunk, error) {
	segments, err := Segments(content, p.maxTokens)
	if err != nil {
		if domain.KindOf(err) == domain.KindChunkingError && sourcePath != "" {
			return nil, domain.NewError(domain.KindChunkingError, "chunk "+sourcePath, err)
		}
		return nil, err
	}

	now := p.now()
	chunks := make([]domain.Chunk, 0, len(segments))
	for i := range segments {
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			Content:    segments[i].Text,
			Checksum:   checksum.String(segments[i].Text),
			SourcePath: sourcePath,
			Position:   i,
			Tags:       tags,
			CreatedAt:  now,
		})
	}

	return chunks, nil
}

// sniffLen bounds how much of a file IsText inspects.
const sniffLen = 8000

// IsText reports whether data looks like text: valid UTF-8 with no NUL
// byte in its first few kilobytes.
func IsText(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	for _, b := range head {
		if b == 0 {
			return false
		}
	}
	if len(data) > sniffLen {
		// The cut may land inside a rune.
		for i := 0; i < utf8.UTFMax && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	return utf8.Valid(head)
}
