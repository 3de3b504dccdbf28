package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Embedder maps text to an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedFunc is a single raw provider call.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// EmbeddingClient paces and retries raw provider calls. It holds no per-call state and is safe
// for concurrent use.
type EmbeddingClient struct {
	embed      EmbedFunc
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	dimension  int
}

var _ Embedder = (*EmbeddingClient)(nil)

type EmbeddingOption func(*EmbeddingClient)

// WithRateLimit caps provider calls per second. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithMaxRetries(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBackoff(base, maxDelay time.Duration) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

// WithDimension rejects vectors whose length differs from n.
func WithDimension(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.dimension = n
	}
}

func NewEmbeddingClient(embed EmbedFunc, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		embed:      embed,
		maxRetries: 2,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the embedding of text. Every failure wraps ErrEmbeddingUnavailable; a
// cancelled context aborts without further attempts.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retryDelay(attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			}
		}

		vec, err := c.embed(ctx, text)
		if err == nil {
			err = c.check(vec)
		}
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingUnavailable, c.maxRetries+1, lastErr)
}

func (c *EmbeddingClient) check(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("provider returned an empty vector")
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		return fmt.Errorf("provider returned %d dimensions, want %d", len(vec), c.dimension)
	}
	return nil
}

func (c *EmbeddingClient) retryDelay(attempt int) time.Duration {
	d := c.baseDelay
	for i := 0; i < attempt && d < c.maxDelay; i++ {
		d *= 2
	}
	return min(d, c.maxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
