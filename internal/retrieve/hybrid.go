package retrieve

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

// DefaultRRFConstant is the reciprocal rank fusion smoothing parameter,
// k=60, the value the teacher's fusion layer also defaults to.
const DefaultRRFConstant = 60

// undefinedRank stands in for "this id did not appear in this
// retriever's result list" when comparing ranks for tie-breaking; it
// must sort after every real (small, positive) rank.
const undefinedRank = math.MaxInt32

// HybridRetriever fuses a DenseRetriever and a SparseRetriever by
// Reciprocal Rank Fusion.
type HybridRetriever struct {
	dense  *DenseRetriever
	sparse *SparseRetriever

	denseWeight     float64
	sparseWeight    float64
	rrfConstant     int
	fetchMultiplier int
}

// HybridConfig configures fusion weights and fan-out width.
type HybridConfig struct {
	DenseWeight     float64
	SparseWeight    float64
	RRFConstant     int
	FetchMultiplier int
}

// DefaultHybridConfig returns the spec-mandated defaults: equal
// weights, C=60, and a 2x fetch multiplier to widen the fusion pool.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		DenseWeight:     0.5,
		SparseWeight:    0.5,
		RRFConstant:     DefaultRRFConstant,
		FetchMultiplier: 2,
	}
}

// NewHybridRetriever creates a HybridRetriever over the given dense and
// sparse retrievers.
func NewHybridRetriever(dense *DenseRetriever, sparse *SparseRetriever, cfg HybridConfig) *HybridRetriever {
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.FetchMultiplier <= 0 {
		cfg.FetchMultiplier = 2
	}
	return &HybridRetriever{
		dense:           dense,
		sparse:          sparse,
		denseWeight:     cfg.DenseWeight,
		sparseWeight:    cfg.SparseWeight,
		rrfConstant:     cfg.RRFConstant,
		fetchMultiplier: cfg.FetchMultiplier,
	}
}

type fusionEntry struct {
	id         string
	document   string
	metadata   map[string]string
	score      float64
	rankDense  int
	rankSparse int
}

// Search runs the dense and sparse retrievers concurrently, each asked
// for fetchMultiplier*topK candidates, and fuses their rankings by RRF.
// An empty corpus is not an error: it simply yields an empty result.
func (h *HybridRetriever) Search(ctx context.Context, query string, topK int, predicate MetadataPredicate) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	fetchK := topK * h.fetchMultiplier

	var denseResults, sparseResults []Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := h.dense.Search(gctx, query, fetchK, predicate)
		if err != nil {
			return semcheerrors.HybridRetriever("dense retrieval failed", err)
		}
		denseResults = r
		return nil
	})
	g.Go(func() error {
		r, err := h.sparse.Search(gctx, query, fetchK, predicate)
		if err != nil {
			return semcheerrors.HybridRetriever("sparse retrieval failed", err)
		}
		sparseResults = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make(map[string]*fusionEntry, len(denseResults)+len(sparseResults))

	for rank, r := range denseResults {
		e := getOrCreateEntry(entries, r.ID)
		e.rankDense = rank + 1
		e.document = r.Document
		e.metadata = r.Metadata
		e.score += h.denseWeight * rrf(rank+1, h.rrfConstant)
	}

	for rank, r := range sparseResults {
		e := getOrCreateEntry(entries, r.ID)
		e.rankSparse = rank + 1
		if e.document == "" {
			e.document = r.Document
			e.metadata = r.Metadata
		}
		e.score += h.sparseWeight * rrf(rank+1, h.rrfConstant)
	}

	fused := make([]*fusionEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}

	sort.Slice(fused, func(i, j int) bool {
		return less(fused[i], fused[j])
	})

	if topK < len(fused) {
		fused = fused[:topK]
	}

	results := make([]Result, len(fused))
	for i, e := range fused {
		results[i] = Result{ID: e.id, Document: e.document, Metadata: e.metadata, Score: e.score}
	}
	return results, nil
}

func getOrCreateEntry(m map[string]*fusionEntry, id string) *fusionEntry {
	if e, ok := m[id]; ok {
		return e
	}
	e := &fusionEntry{id: id, rankDense: undefinedRank, rankSparse: undefinedRank}
	m[id] = e
	return e
}

// rrf is RRF(r) = 1/(C+r). Callers never pass an undefined rank here;
// contributions from a missing retriever are simply zero, per spec.
func rrf(rank, c int) float64 {
	return 1.0 / float64(c+rank)
}

// less implements the fused-result tie-break chain: higher score,
// then smaller rank_dense, then smaller rank_sparse, then lexicographic id.
func less(a, b *fusionEntry) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.rankDense != b.rankDense {
		return a.rankDense < b.rankDense
	}
	if a.rankSparse != b.rankSparse {
		return a.rankSparse < b.rankSparse
	}
	return a.id < b.id
}
