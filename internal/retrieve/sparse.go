package retrieve

import (
	"context"

	"github.com/paterapatera/semche/internal/store"
)

// zeroScoreEpsilon is the cutoff below which a BM25 hit is treated as
// carrying no signal: it would otherwise tie-order arbitrarily with
// every other non-match in the fusion step.
const zeroScoreEpsilon = 1e-12

// SparseRetriever runs a fresh BM25 search over the current corpus on
// every query. Rebuilding per query (rather than maintaining an
// incrementally-updated index) keeps the sparse side trivially
// consistent with the Vector Store, which is the system of record for
// document content.
type SparseRetriever struct {
	vectors   store.VectorStore
	tokenizer store.Tokenizer
	config    store.BM25Config
}

// NewSparseRetriever creates a SparseRetriever.
func NewSparseRetriever(vectors store.VectorStore, tokenizer store.Tokenizer, config store.BM25Config) *SparseRetriever {
	return &SparseRetriever{vectors: vectors, tokenizer: tokenizer, config: config}
}

// Search fetches the (optionally predicate-filtered) corpus, builds a
// throwaway BM25 index over it, and returns up to topK hits with a
// positive score.
func (r *SparseRetriever) Search(ctx context.Context, query string, topK int, predicate MetadataPredicate) ([]Result, error) {
	all, err := r.vectors.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	docByID := make(map[string]store.Document, len(all))
	corpus := make([]store.Document, 0, len(all))
	for _, doc := range all {
		if len(predicate) > 0 && !predicate.Matches(doc.Metadata) {
			continue
		}
		corpus = append(corpus, doc)
		docByID[doc.ID] = doc
	}

	index := store.NewMemoryBM25Index(r.tokenizer, r.config)
	if err := index.Add(ctx, corpus); err != nil {
		return nil, err
	}

	hits, err := index.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Score <= zeroScoreEpsilon {
			continue
		}
		doc := docByID[h.DocID]
		results = append(results, Result{
			ID:       h.DocID,
			Document: doc.Content,
			Metadata: doc.Metadata,
			Score:    h.Score,
		})
	}

	return results, nil
}
