package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
)

type stubProvider struct {
	dims     int
	failures int
	err      error
	batches  [][]string
}

func (s *stubProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	s.batches = append(s.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestBatchEmbedder_SplitsAndKeepsOrder(t *testing.T) {
	inner := &stubProvider{dims: 3}
	b := NewBatchEmbedder(inner, WithBatchSize(2), WithDimensions(3), WithRetryPolicy(fastRetry()))

	vecs, err := b.EmbedTexts(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, inner.batches)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestBatchEmbedder_RetriesTransientErrors(t *testing.T) {
	inner := &stubProvider{dims: 2, failures: 2, err: errors.New("502 bad gateway")}
	b := NewBatchEmbedder(inner, WithRetryPolicy(fastRetry()))

	vecs, err := b.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestBatchEmbedder_PermanentErrorIsNotRetried(t *testing.T) {
	inner := &stubProvider{dims: 2, failures: 1, err: retry.Permanent(errors.New("400 bad input"))}
	b := NewBatchEmbedder(inner, WithRetryPolicy(fastRetry()))

	_, err := b.EmbedTexts(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400 bad input")
	assert.Empty(t, inner.batches)
}

func TestBatchEmbedder_DimensionMismatch(t *testing.T) {
	b := NewBatchEmbedder(&stubProvider{dims: 4}, WithDimensions(1536), WithRetryPolicy(fastRetry()))

	_, err := b.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestBatchEmbedder_RateLimitHonoursContext(t *testing.T) {
	b := NewBatchEmbedder(&stubProvider{dims: 1}, WithBatchSize(1), WithRateLimit(0.001), WithRetryPolicy(fastRetry()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The first request spends the burst; the second would wait far past the deadline.
	_, err := b.EmbedTexts(ctx, []string{"a", "b"})
	assert.Error(t, err)
}

func TestBatchEmbedder_Empty(t *testing.T) {
	vecs, err := NewBatchEmbedder(&stubProvider{dims: 1}).EmbedTexts(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, vecs)
}
