// Package retrieve implements the dense, sparse, and fused hybrid
// retrievers that sit on top of the store package's BM25 index and
// vector store.
package retrieve

// Result is a single retrieval hit, shared by the dense, sparse, and
// hybrid retrievers so that the fusion stage can treat them uniformly.
type Result struct {
	ID       string
	Document string
	Metadata map[string]string
	Score    float64
}

// MetadataPredicate is a conjunction of equality conditions over
// document metadata. The vector store's GetAll and Query take no
// predicate: the dense retriever applies it to the topK kNN hits after
// the query, so a filtered dense search can return fewer than topK
// results, and the sparse retriever applies it to its corpus snapshot.
type MetadataPredicate map[string]string

// Matches reports whether doc's metadata satisfies every condition in p.
// An empty or nil predicate matches everything.
func (p MetadataPredicate) Matches(metadata map[string]string) bool {
	for k, v := range p {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
