package retrieve

import (
	"context"

	"github.com/paterapatera/semche/internal/embed"
	semcheerrors "github.com/paterapatera/semche/internal/errors"
	"github.com/paterapatera/semche/internal/store"
)

// DenseRetriever wraps the vector store's kNN query behind an
// embedder, so callers supply a query string rather than a vector.
type DenseRetriever struct {
	vectors  store.VectorStore
	embedder embed.Embedder
}

// NewDenseRetriever creates a DenseRetriever.
func NewDenseRetriever(vectors store.VectorStore, embedder embed.Embedder) *DenseRetriever {
	return &DenseRetriever{vectors: vectors, embedder: embedder}
}

// Search embeds query, runs a kNN search against the vector store, and
// returns up to topK results ordered by similarity descending. A
// metadata predicate, when supplied, is applied as a post-filter since
// the vector store's kNN search has no native predicate pushdown.
func (r *DenseRetriever) Search(ctx context.Context, query string, topK int, predicate MetadataPredicate) ([]Result, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, semcheerrors.Embedding("failed to embed query for dense retrieval", err)
	}

	hits, err := r.vectors.Query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	scoreByID := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		scoreByID[h.ID] = float64(h.Score)
	}

	docs, err := r.vectors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	docByID := make(map[string]store.Document, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		doc, ok := docByID[h.ID]
		if !ok {
			continue
		}
		if len(predicate) > 0 && !predicate.Matches(doc.Metadata) {
			continue
		}
		results = append(results, Result{
			ID:       h.ID,
			Document: doc.Content,
			Metadata: doc.Metadata,
			Score:    scoreByID[h.ID],
		})
	}

	return results, nil
}
