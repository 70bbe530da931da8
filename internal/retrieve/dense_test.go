package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/store"
)

func newTestDenseRetriever(t *testing.T) (*DenseRetriever, store.VectorStore, embed.Embedder) {
	t.Helper()
	vs := store.NewSQLiteVectorStore(store.DefaultVectorStoreConfig(store.MetricCosine))
	require.NoError(t, vs.Load(t.TempDir()))
	t.Cleanup(func() { _ = vs.Close() })

	embedder := embed.NewStaticEmbedder()
	return NewDenseRetriever(vs, embedder), vs, embedder
}

func TestDenseRetrieverSearchOrdersBySimilarity(t *testing.T) {
	dense, vs, embedder := newTestDenseRetriever(t)
	ctx := context.Background()

	mk := func(id, text string) store.Document {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		return store.Document{ID: id, Content: text, Embedding: vec}
	}

	require.NoError(t, vs.Upsert(ctx, []store.Document{
		mk("close", "golang hybrid retrieval engine"),
		mk("far", "a recipe for baking sourdough bread"),
	}))

	results, err := dense.Search(ctx, "golang hybrid retrieval engine", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestDenseRetrieverAppliesMetadataPredicate(t *testing.T) {
	dense, vs, embedder := newTestDenseRetriever(t)
	ctx := context.Background()

	mk := func(id, text, fileType string) store.Document {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		return store.Document{ID: id, Content: text, Embedding: vec, Metadata: map[string]string{"file_type": fileType}}
	}

	require.NoError(t, vs.Upsert(ctx, []store.Document{
		mk("a", "shared topic text", "tech"),
		mk("b", "shared topic text", "story"),
	}))

	results, err := dense.Search(ctx, "shared topic text", 5, MetadataPredicate{"file_type": "story"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestDenseRetrieverEmptyVectorStoreReturnsEmpty(t *testing.T) {
	dense, _, _ := newTestDenseRetriever(t)
	results, err := dense.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
