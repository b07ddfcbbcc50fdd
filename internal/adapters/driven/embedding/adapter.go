// Package embedding wraps a remote embedding provider with sub-batching,
// ordered reassembly, rate limiting and bounded retries.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/logger"
)

// Ensure Adapter implements the interface.
var _ driven.EmbeddingService = (*Adapter)(nil)

// Default configuration values.
const (
	DefaultBatchSize   = 64
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultConcurrency = 2
)

// Adapter is an EmbeddingService that splits large requests into batches
// the provider accepts and retries transient failures with exponential backoff.
type Adapter struct {
	provider    driven.EmbeddingService
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	concurrency int
	limiter     *RateLimiter
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBatchSize caps the number of texts per provider request.
func WithBatchSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithMaxAttempts caps provider calls per batch, including the first.
func WithMaxAttempts(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum retry delay.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(a *Adapter) {
		if base > 0 {
			a.baseDelay = base
		}
		if maxDelay >= base && maxDelay > 0 {
			a.maxDelay = maxDelay
		}
	}
}

// WithConcurrency sets how many batches are in flight at once.
func WithConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithRateLimit throttles provider calls.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(a *Adapter) {
		if cfg.RequestsPerSecond > 0 {
			a.limiter = NewRateLimiter(cfg)
		}
	}
}

// NewAdapter wraps provider.
func NewAdapter(provider driven.EmbeddingService, opts ...Option) *Adapter {
	a := &Adapter{
		provider:    provider,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Embed generates a vector embedding for the given text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one vector per text in input order.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for start := 0; start < len(texts); start += a.batchSize {
		end := min(start+a.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := a.embedWithRetry(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return out, nil
}

func (a *Adapter) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	delay := a.baseDelay
	var lastErr error

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vecs, err := a.provider.EmbedBatch(ctx, batch)
		if err == nil {
			if err := a.check(batch, vecs); err != nil {
				return nil, domain.NewError(domain.KindEmbeddingUnavailable, "invalid embedding response", err)
			}
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if !isTransient(err) || attempt == a.maxAttempts {
			break
		}

		logger.Debug("embedding attempt %d/%d failed, retrying in %s: %v", attempt, a.maxAttempts, delay, err)
		var perr *domain.ProviderError
		if a.limiter != nil && errors.As(err, &perr) && perr.StatusCode == 429 {
			a.limiter.RecordRateLimitError(delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, a.maxDelay)
	}

	return nil, domain.NewError(domain.KindEmbeddingUnavailable,
		fmt.Sprintf("embed %d texts with %s", len(batch), a.provider.ModelName()), lastErr)
}

func (a *Adapter) check(batch []string, vecs [][]float32) error {
	if len(vecs) != len(batch) {
		return fmt.Errorf("expected %d vectors, got %d", len(batch), len(vecs))
	}
	dim := a.provider.Dimensions()
	for i, v := range vecs {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

// isTransient reports whether err may clear on retry: rate limiting,
// server-side failures, network timeouts and refused or reset
// connections. Malformed URLs and TLS failures are permanent.
func isTransient(err error) bool {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// Dimensions returns the provider's vector size.
func (a *Adapter) Dimensions() int {
	return a.provider.Dimensions()
}

// ModelName returns the provider's model.
func (a *Adapter) ModelName() string {
	return a.provider.ModelName()
}

// Ping validates the provider is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.provider.Ping(ctx)
}

// Close releases the provider.
func (a *Adapter) Close() error {
	return a.provider.Close()
}
