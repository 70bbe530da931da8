package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/store"
)

func newHybridFixture(t *testing.T) (*HybridRetriever, store.VectorStore) {
	t.Helper()
	vs := store.NewSQLiteVectorStore(store.DefaultVectorStoreConfig(store.MetricCosine))
	require.NoError(t, vs.Load(t.TempDir()))
	t.Cleanup(func() { _ = vs.Close() })

	embedder := embed.NewStaticEmbedder()
	dense := NewDenseRetriever(vs, embedder)
	sparse := NewSparseRetriever(vs, store.NewFallbackTokenizer(), store.DefaultBM25Config())
	hybrid := NewHybridRetriever(dense, sparse, DefaultHybridConfig())
	return hybrid, vs
}

func TestHybridRetrieverFusesBothSources(t *testing.T) {
	hybrid, vs := newHybridFixture(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	texts := map[string]string{
		"a": "hybrid search combines dense and sparse retrieval",
		"b": "the quick brown fox jumps over the lazy dog",
	}
	docs := make([]store.Document, 0, len(texts))
	for id, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		docs = append(docs, store.Document{ID: id, Content: text, Embedding: vec})
	}
	require.NoError(t, vs.Upsert(ctx, docs))

	results, err := hybrid.Search(ctx, "hybrid dense sparse retrieval", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestHybridRetrieverEmptyCorpusReturnsEmptyNotError(t *testing.T) {
	hybrid, _ := newHybridFixture(t)
	results, err := hybrid.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridRetrieverRespectsMetadataPredicate(t *testing.T) {
	hybrid, vs := newHybridFixture(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	mk := func(id, text, fileType string) store.Document {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		return store.Document{ID: id, Content: text, Embedding: vec, Metadata: map[string]string{"file_type": fileType}}
	}

	require.NoError(t, vs.Upsert(ctx, []store.Document{
		mk("tech.md", "programming language retrieval engine", "tech"),
		mk("story.md", "programming language retrieval engine", "story"),
	}))

	results, err := hybrid.Search(ctx, "programming language", 5, MetadataPredicate{"file_type": "tech"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "tech", r.Metadata["file_type"])
	}
}

func TestHybridRetrieverTruncatesToTopK(t *testing.T) {
	hybrid, vs := newHybridFixture(t)
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder()

	docs := make([]store.Document, 0, 10)
	for i := 0; i < 10; i++ {
		text := "shared vocabulary document number"
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		docs = append(docs, store.Document{ID: string(rune('a' + i)), Content: text, Embedding: vec})
	}
	require.NoError(t, vs.Upsert(ctx, docs))

	results, err := hybrid.Search(ctx, "shared vocabulary document", 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
