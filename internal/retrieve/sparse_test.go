package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/store"
)

func newTestSparseRetriever(t *testing.T) (*SparseRetriever, store.VectorStore) {
	t.Helper()
	vs := store.NewSQLiteVectorStore(store.DefaultVectorStoreConfig(store.MetricCosine))
	require.NoError(t, vs.Load(t.TempDir()))
	t.Cleanup(func() { _ = vs.Close() })

	sparse := NewSparseRetriever(vs, store.NewFallbackTokenizer(), store.DefaultBM25Config())
	return sparse, vs
}

func TestSparseRetrieverRanksTermOverlap(t *testing.T) {
	sparse, vs := newTestSparseRetriever(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	mk := func(id, text string) store.Document {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		return store.Document{ID: id, Content: text, Embedding: vec}
	}

	require.NoError(t, vs.Upsert(ctx, []store.Document{
		mk("match", "okapi bm25 term frequency ranking okapi bm25"),
		mk("nomatch", "completely unrelated content about gardening"),
	}))

	results, err := sparse.Search(ctx, "okapi bm25", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "match", results[0].ID)
}

func TestSparseRetrieverFiltersZeroScoreHits(t *testing.T) {
	sparse, vs := newTestSparseRetriever(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	vec, err := embedder.Embed(ctx, "totally unrelated document text")
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(ctx, []store.Document{
		{ID: "a", Content: "totally unrelated document text", Embedding: vec},
	}))

	results, err := sparse.Search(ctx, "nonexistent query terms here", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSparseRetrieverHonorsMetadataPredicate(t *testing.T) {
	sparse, vs := newTestSparseRetriever(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	mk := func(id, text, fileType string) store.Document {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		return store.Document{ID: id, Content: text, Embedding: vec, Metadata: map[string]string{"file_type": fileType}}
	}

	require.NoError(t, vs.Upsert(ctx, []store.Document{
		mk("tech.md", "search index ranking algorithm", "tech"),
		mk("story.md", "search index ranking algorithm", "story"),
	}))

	results, err := sparse.Search(ctx, "search index ranking algorithm", 5, MetadataPredicate{"file_type": "tech"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tech.md", results[0].ID)
}

func TestSparseRetrieverEmptyCorpusReturnsEmpty(t *testing.T) {
	sparse, _ := newTestSparseRetriever(t)
	results, err := sparse.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
