package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

func newTestIndex() *MemoryBM25Index {
	return NewMemoryBM25Index(NewFallbackTokenizer(), DefaultBM25Config())
}

func TestBM25IndexSearchRanksByRelevance(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()

	docs := []Document{
		{ID: "a", Content: "hybrid search combines dense and sparse retrieval"},
		{ID: "b", Content: "dense retrieval uses vector embeddings"},
		{ID: "c", Content: "the quick brown fox jumps over the lazy dog"},
	}
	require.NoError(t, idx.Add(ctx, docs))

	results, err := idx.Search(ctx, "dense retrieval", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].DocID)
	assert.Equal(t, "a", results[1].DocID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestBM25IndexSearchRespectsTopK(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "a", Content: "alpha alpha alpha"},
		{ID: "b", Content: "alpha beta"},
		{ID: "c", Content: "alpha gamma"},
	}))

	results, err := idx.Search(ctx, "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBM25IndexSearchEmptyQueryReturnsEmpty(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{{ID: "a", Content: "something"}}))

	results, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25IndexDeleteRemovesDocument(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "a", Content: "unique term zyzzyva"},
		{ID: "b", Content: "other content"},
	}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	results, err := idx.Search(ctx, "zyzzyva", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotContains(t, idx.AllIDs(), "a")
}

func TestBM25IndexAddReplacesExistingDocument(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{{ID: "a", Content: "original content"}}))
	require.NoError(t, idx.Add(ctx, []Document{{ID: "a", Content: "updated wording entirely"}}))

	results, err := idx.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "updated", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocID)
}

func TestBM25IndexStatsReflectsCorpus(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "a", Content: "one two three"},
		{ID: "b", Content: "four five"},
	}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.InDelta(t, 2.5, stats.AvgDocLength, 0.001)
	assert.Equal(t, 5, stats.TermCount)
}

func TestBM25IndexSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "a", Content: "persisted snapshot content"},
	}))
	require.NoError(t, idx.Save(dir))

	reloaded := newTestIndex()
	require.NoError(t, reloaded.Load(dir))

	results, err := reloaded.Search(ctx, "persisted", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocID)
}

func TestBM25IndexLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex()
	require.NoError(t, idx.Load(dir))
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestBM25IndexLoadCorruptFileReturnsCorruptIndexError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/bm25_index.gob", []byte("not a valid gob stream"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/bm25_metadata.json", []byte(`{"corpus_texts":[],"corpus_ids":[]}`), 0o644))

	idx := newTestIndex()
	err := idx.Load(dir)
	require.Error(t, err)
	assert.Equal(t, semcheerrors.KindCorruptIndex, semcheerrors.GetKind(err))
}

func TestBM25IndexSaveWritesTwoFileLayout(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "a", Content: "persisted snapshot content"},
	}))
	require.NoError(t, idx.Save(dir))

	indexBytes, err := os.ReadFile(dir + "/bm25_index.gob")
	require.NoError(t, err)
	assert.NotEmpty(t, indexBytes)

	metadataBytes, err := os.ReadFile(dir + "/bm25_metadata.json")
	require.NoError(t, err)
	assert.Contains(t, string(metadataBytes), "corpus_texts")
	assert.Contains(t, string(metadataBytes), "corpus_ids")
	assert.Contains(t, string(metadataBytes), "persisted snapshot content")
}

func TestBM25IndexSearchTiesBreakByInsertionOrder(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()

	// Both documents share identical content, so they tie on score.
	// "zebra" is inserted before "apple", so ascending corpus position
	// (not lexicographic DocID) must decide the order.
	require.NoError(t, idx.Add(ctx, []Document{
		{ID: "zebra.md", Content: "alpha beta gamma"},
		{ID: "apple.md", Content: "alpha beta gamma"},
	}))

	results, err := idx.Search(ctx, "alpha beta gamma", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, "zebra.md", results[0].DocID)
	assert.Equal(t, "apple.md", results[1].DocID)
}
