package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderIsDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "func main() { fmt.Println(\"hi\") }")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "func main() { fmt.Println(\"hi\") }")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)
}

func TestStaticEmbedderProducesUnitVectors(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "hybrid retrieval over a BM25 index")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 0.001)
}

func TestStaticEmbedderEmptyInputIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedderBatchPreservesOrder(t *testing.T) {
	e := NewStaticEmbedder()
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedderClosedRejectsCalls(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
