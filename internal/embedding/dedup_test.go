package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls atomic.Int32
	dim   int
}

func (c *countingEmbedder) Dimension() int { return c.dim }

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	vec := make([]float32, c.dim)
	for i := range vec {
		vec[i] = float32(len(text))
	}
	return vec, nil
}

func TestDeduplicating_CollapsesConcurrentIdenticalCalls(t *testing.T) {
	inner := &countingEmbedder{dim: 4}
	d := NewDeduplicating(inner)

	var wg sync.WaitGroup
	results := make([][]float32, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := d.Embed(context.Background(), "same text")
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int32(20))
	for _, r := range results {
		assert.Equal(t, []float32{9, 9, 9, 9}, r)
	}
}

func TestDeduplicating_ResultsAreIndependentCopies(t *testing.T) {
	inner := &countingEmbedder{dim: 2}
	d := NewDeduplicating(inner)

	a, err := d.Embed(context.Background(), "x")
	require.NoError(t, err)
	b, err := d.Embed(context.Background(), "x")
	require.NoError(t, err)

	a[0] = 999
	assert.NotEqual(t, a[0], b[0])
}

func TestDeduplicating_DimensionDelegates(t *testing.T) {
	inner := &countingEmbedder{dim: 384}
	d := NewDeduplicating(inner)
	assert.Equal(t, 384, d.Dimension())
}
