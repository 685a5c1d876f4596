package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
	"github.com/markdave123-py/contexta-etl/internal/logger"
)

const (
	DefaultBatchSize = 16
	embedderModule   = "embedder"
)

// BatchEmbedder wraps a provider with request sizing, pacing, retries and a
// dimension check. Batches are sent one after another, in order.
type BatchEmbedder struct {
	inner     core.EmbeddingProvider
	batchSize int
	dims      int
	limiter   *rate.Limiter
	policy    retry.Policy
	log       logger.ILogger
}

type BatchOption func(*BatchEmbedder)

func WithBatchSize(n int) BatchOption {
	return func(b *BatchEmbedder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithDimensions rejects vectors of any other length with core.ErrDimensionMismatch.
func WithDimensions(n int) BatchOption {
	return func(b *BatchEmbedder) { b.dims = n }
}

// WithRateLimit caps requests per second. rps <= 0 means unlimited.
func WithRateLimit(rps float64) BatchOption {
	return func(b *BatchEmbedder) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func WithRetryPolicy(p retry.Policy) BatchOption {
	return func(b *BatchEmbedder) { b.policy = p }
}

func WithLogger(l logger.ILogger) BatchOption {
	return func(b *BatchEmbedder) {
		if l != nil {
			b.log = l
		}
	}
}

func NewBatchEmbedder(inner core.EmbeddingProvider, opts ...BatchOption) *BatchEmbedder {
	b := &BatchEmbedder{
		inner:     inner,
		batchSize: DefaultBatchSize,
		policy:    retry.DefaultPolicy(),
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vecs, err := retry.Do(ctx, b.policy, "embed", b.log, func(ctx context.Context) ([][]float32, error) {
			return b.inner.EmbedTexts(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors for %d texts", start, end, len(vecs), len(batch))
		}
		for k, v := range vecs {
			if b.dims > 0 && len(v) != b.dims {
				return nil, fmt.Errorf("%w: input %d has %d values, want %d", core.ErrDimensionMismatch, start+k, len(v), b.dims)
			}
		}
		out = append(out, vecs...)

		b.log.Debug(embedderModule, "batch embedded", map[string]interface{}{"from": start, "to": end})
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*BatchEmbedder)(nil)
