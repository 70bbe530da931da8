package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *SQLiteVectorStore {
	t.Helper()
	s := NewSQLiteVectorStore(DefaultVectorStoreConfig(MetricCosine))
	require.NoError(t, s.Load(t.TempDir()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestVectorStoreUpsertAndQuery(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "alpha", Metadata: map[string]string{"filepath": "a"}, Embedding: []float32{1, 0, 0}},
		{ID: "b", Content: "beta", Metadata: map[string]string{"filepath": "b"}, Embedding: []float32{0, 1, 0}},
	}))

	assert.Equal(t, 3, s.Dimensions())
	assert.Equal(t, 2, s.Count())

	results, err := s.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestVectorStoreDimensionMismatchRejected(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "alpha", Embedding: []float32{1, 0, 0}},
	}))

	err := s.Upsert(ctx, []Document{{ID: "b", Content: "beta", Embedding: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestVectorStoreUpsertReplacesExisting(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "version one", Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "version two", Embedding: []float32{0, 1, 0}},
	}))

	assert.Equal(t, 1, s.Count())

	docs, err := s.GetByIDs(ctx, []string{"a"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "version two", docs[0].Content)
}

func TestVectorStoreGetByPrefix(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "docs/a.md", Content: "a", Embedding: []float32{1, 0}},
		{ID: "docs/b.md", Content: "b", Embedding: []float32{0, 1}},
		{ID: "other/c.md", Content: "c", Embedding: []float32{1, 1}},
	}))

	docs, err := s.GetByPrefix(ctx, "docs/")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestVectorStoreDeleteReportsCount(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "alpha", Embedding: []float32{1, 0}},
		{ID: "b", Content: "beta", Embedding: []float32{0, 1}},
	}))

	n, err := s.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Count())
}

func TestVectorStoreSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	s := NewSQLiteVectorStore(DefaultVectorStoreConfig(MetricCosine))
	require.NoError(t, s.Load(dir))

	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []Document{
		{ID: "a", Content: "persisted", Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, s.Save(dir))
	require.NoError(t, s.Close())

	reloaded := NewSQLiteVectorStore(DefaultVectorStoreConfig(MetricCosine))
	require.NoError(t, reloaded.Load(dir))
	defer reloaded.Close()

	assert.Equal(t, 1, reloaded.Count())
	results, err := reloaded.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestVectorStoreSecondOpenOnSameDirIsLocked(t *testing.T) {
	dir := t.TempDir()
	s1 := NewSQLiteVectorStore(DefaultVectorStoreConfig(MetricCosine))
	require.NoError(t, s1.Load(dir))
	defer s1.Close()

	s2 := NewSQLiteVectorStore(DefaultVectorStoreConfig(MetricCosine))
	err := s2.Load(dir)
	assert.Error(t, err)
}
