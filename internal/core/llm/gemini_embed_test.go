package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestTruncateVector(t *testing.T) {
	full := make([]float32, 3072)
	for i := range full {
		full[i] = float32(i%7) - 3
	}

	got := truncateVector(full, 1536)

	require.Len(t, got, 1536)
	assert.InDelta(t, 1.0, norm(got), 1e-5)
	// direction of the prefix is kept
	scale := got[0] / full[0]
	for i := 0; i < 10; i++ {
		assert.InDelta(t, float64(full[i]*scale), float64(got[i]), 1e-6)
	}
	assert.Equal(t, float32(-3), full[0], "input is not modified")
}

func TestTruncateVector_LeavesShortVectors(t *testing.T) {
	v := []float32{0.6, 0.8}
	assert.Equal(t, v, truncateVector(v, 1536))
	assert.Equal(t, v, truncateVector(v, 0))
	assert.Equal(t, v, truncateVector(v, 2))
}

func TestTruncateVector_ZeroVector(t *testing.T) {
	got := truncateVector(make([]float32, 8), 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, got)
}

func TestNewGeminiEmbedder_RequiresKey(t *testing.T) {
	_, err := NewGeminiEmbedder(context.Background(), "", "", 1536)
	assert.Error(t, err)
}
