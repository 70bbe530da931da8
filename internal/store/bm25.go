package store

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

// MemoryBM25Index is a hand-rolled Okapi BM25 index: an inverted index
// keyed by term plus per-document term frequencies and lengths. It is
// rebuilt from an in-memory snapshot rather than delegating to a
// full-text search engine, so that Save/Load round-trip exactly the
// statistics the scorer needs and nothing more.
type MemoryBM25Index struct {
	mu sync.RWMutex

	tokenizer Tokenizer
	config    BM25Config

	// invertedIndex maps term -> docID -> term frequency in that doc.
	invertedIndex map[string]map[string]int

	// docLengths maps docID -> token count.
	docLengths map[string]int

	// docIDs is the set of indexed document IDs, used to answer AllIDs
	// without a second pass over invertedIndex.
	docIDs map[string]struct{}

	// docTexts retains the raw content of each indexed document, needed
	// to round-trip corpus_texts on Save/Load.
	docTexts map[string]string

	// seq assigns each currently-indexed document an ascending corpus
	// position, in the order it was added; ties in Search are broken by
	// this position rather than by DocID.
	seq     map[string]int
	nextSeq int

	totalDocs int
	totalLen  int

	built bool
}

var _ BM25Index = (*MemoryBM25Index)(nil)

// NewMemoryBM25Index creates an empty BM25 index using tokenizer to
// split document and query text into terms.
func NewMemoryBM25Index(tokenizer Tokenizer, config BM25Config) *MemoryBM25Index {
	return &MemoryBM25Index{
		tokenizer:     tokenizer,
		config:        config,
		invertedIndex: make(map[string]map[string]int),
		docLengths:    make(map[string]int),
		docIDs:        make(map[string]struct{}),
		docTexts:      make(map[string]string),
		seq:           make(map[string]int),
		built:         true,
	}
}

// Add inserts or replaces documents in the index.
func (idx *MemoryBM25Index) Add(ctx context.Context, docs []Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, doc := range docs {
		idx.removeLocked(doc.ID)

		tokens := idx.tokenizer.Tokenize(doc.Content)
		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}

		for term, tf := range freqs {
			postings, ok := idx.invertedIndex[term]
			if !ok {
				postings = make(map[string]int)
				idx.invertedIndex[term] = postings
			}
			postings[doc.ID] = tf
		}

		idx.docLengths[doc.ID] = len(tokens)
		idx.docIDs[doc.ID] = struct{}{}
		idx.docTexts[doc.ID] = doc.Content
		idx.seq[doc.ID] = idx.nextSeq
		idx.nextSeq++
		idx.totalDocs++
		idx.totalLen += len(tokens)
	}

	idx.built = true
	return nil
}

// Delete removes documents by ID.
func (idx *MemoryBM25Index) Delete(ctx context.Context, docIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, id := range docIDs {
		idx.removeLocked(id)
	}
	return nil
}

// removeLocked drops a document from the index. Caller must hold mu.
func (idx *MemoryBM25Index) removeLocked(docID string) {
	if _, exists := idx.docIDs[docID]; !exists {
		return
	}

	for term, postings := range idx.invertedIndex {
		if _, ok := postings[docID]; ok {
			delete(postings, docID)
			if len(postings) == 0 {
				delete(idx.invertedIndex, term)
			}
		}
	}

	idx.totalLen -= idx.docLengths[docID]
	idx.totalDocs--
	delete(idx.docLengths, docID)
	delete(idx.docIDs, docID)
	delete(idx.docTexts, docID)
	delete(idx.seq, docID)
}

// Search returns the topK documents best matching query, scored by BM25.
func (idx *MemoryBM25Index) Search(ctx context.Context, query string, topK int) ([]BM25Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.built {
		return nil, semcheerrors.IndexNotBuilt("BM25 index has not been built", nil)
	}
	if idx.totalDocs == 0 {
		return []BM25Result{}, nil
	}

	queryTerms := idx.tokenizer.Tokenize(query)
	if len(queryTerms) == 0 {
		return []BM25Result{}, nil
	}

	avgDL := float64(idx.totalLen) / float64(idx.totalDocs)

	matchedByDoc := make(map[string]map[string]struct{})
	for _, term := range queryTerms {
		postings, ok := idx.invertedIndex[term]
		if !ok {
			continue
		}
		for docID := range postings {
			set, ok := matchedByDoc[docID]
			if !ok {
				set = make(map[string]struct{})
				matchedByDoc[docID] = set
			}
			set[term] = struct{}{}
		}
	}

	results := make([]BM25Result, 0, len(matchedByDoc))
	for docID, matched := range matchedByDoc {
		score := idx.scoreLocked(docID, queryTerms, avgDL)
		if score <= 0 {
			continue
		}
		terms := make([]string, 0, len(matched))
		for t := range matched {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, BM25Result{DocID: docID, Score: score, MatchedTerms: terms})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return idx.seq[results[i].DocID] < idx.seq[results[j].DocID]
	})

	if topK >= 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// scoreLocked computes the Okapi BM25 score for docID against
// queryTerms. Caller must hold at least a read lock.
func (idx *MemoryBM25Index) scoreLocked(docID string, queryTerms []string, avgDL float64) float64 {
	docLen := float64(idx.docLengths[docID])
	k1, b := idx.config.K1, idx.config.B

	var score float64
	seen := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings, ok := idx.invertedIndex[term]
		if !ok {
			continue
		}
		tf, ok := postings[docID]
		if !ok || tf == 0 {
			continue
		}

		n := float64(len(postings))
		idf := math.Log((float64(idx.totalDocs)-n+0.5)/(n+0.5) + 1.0)

		numerator := float64(tf) * (k1 + 1)
		denominator := float64(tf) + k1*(1-b+b*docLen/avgDL)
		score += idf * numerator / denominator
	}
	return score
}

// AllIDs returns every document ID currently indexed.
func (idx *MemoryBM25Index) AllIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.docIDs))
	for id := range idx.docIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats reports corpus-level statistics.
func (idx *MemoryBM25Index) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var avgDL float64
	if idx.totalDocs > 0 {
		avgDL = float64(idx.totalLen) / float64(idx.totalDocs)
	}
	return IndexStats{
		DocumentCount: idx.totalDocs,
		TermCount:     len(idx.invertedIndex),
		AvgDocLength:  avgDL,
	}
}

// posting is one document's term frequency within bm25Index's postings
// list. Field names are part of the on-disk format and must not be
// renamed casually.
type posting struct {
	DocID string
	TF    int
}

// bm25Index is the gob-encoded shape persisted to dir/bm25_index.gob:
// term statistics, per-document lengths, and corpus-size scalars, but
// none of the raw document text (that lives in bm25_metadata.json).
type bm25Index struct {
	Postings  map[string][]posting
	DocLen    map[string]int
	AvgDocLen float64
	N         int
	K1        float64
	B         float64
}

// bm25Metadata is the JSON-encoded shape persisted to
// dir/bm25_metadata.json: the raw corpus texts and their document IDs,
// aligned by position (position also doubles as corpus insertion order
// for tie-breaking on reload).
type bm25Metadata struct {
	CorpusTexts []string `json:"corpus_texts"`
	CorpusIDs   []string `json:"corpus_ids"`
}

const (
	bm25IndexFile    = "bm25_index.gob"
	bm25MetadataFile = "bm25_metadata.json"
)

// Save persists the index to dir/bm25_index.gob (postings and document
// statistics) and dir/bm25_metadata.json (corpus_texts/corpus_ids,
// position-aligned), matching the two-file layout documents were
// originally exchanged in.
func (idx *MemoryBM25Index) Save(dir string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return semcheerrors.BackendFailure("failed to create BM25 index directory", err)
	}

	ids := make([]string, 0, len(idx.docIDs))
	for id := range idx.docIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idx.seq[ids[i]] < idx.seq[ids[j]] })

	postings := make(map[string][]posting, len(idx.invertedIndex))
	for term, byDoc := range idx.invertedIndex {
		list := make([]posting, 0, len(byDoc))
		for docID, tf := range byDoc {
			list = append(list, posting{DocID: docID, TF: tf})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })
		postings[term] = list
	}

	var avgDL float64
	if idx.totalDocs > 0 {
		avgDL = float64(idx.totalLen) / float64(idx.totalDocs)
	}

	indexSnapshot := bm25Index{
		Postings:  postings,
		DocLen:    idx.docLengths,
		AvgDocLen: avgDL,
		N:         idx.totalDocs,
		K1:        idx.config.K1,
		B:         idx.config.B,
	}

	metadata := bm25Metadata{
		CorpusTexts: make([]string, len(ids)),
		CorpusIDs:   ids,
	}
	for i, id := range ids {
		metadata.CorpusTexts[i] = idx.docTexts[id]
	}

	if err := writeGobAtomic(filepath.Join(dir, bm25IndexFile), indexSnapshot); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(dir, bm25MetadataFile), metadata); err != nil {
		return err
	}
	return nil
}

// Load restores index state from dir/bm25_index.gob and
// dir/bm25_metadata.json. A missing pair of files is not an error: the
// index simply stays empty, matching first-run semantics.
func (idx *MemoryBM25Index) Load(dir string) error {
	indexPath := filepath.Join(dir, bm25IndexFile)
	metadataPath := filepath.Join(dir, bm25MetadataFile)

	indexBytes, err := os.Open(indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return semcheerrors.BackendFailure("failed to open BM25 index file", err)
	}
	defer indexBytes.Close()

	var indexSnapshot bm25Index
	if err := gob.NewDecoder(indexBytes).Decode(&indexSnapshot); err != nil {
		return semcheerrors.CorruptIndex(fmt.Sprintf("BM25 index file at %s is corrupt", indexPath), err)
	}

	metadataFile, err := os.Open(metadataPath)
	if err != nil {
		return semcheerrors.CorruptIndex(fmt.Sprintf("BM25 metadata file at %s is missing", metadataPath), err)
	}
	defer metadataFile.Close()

	var metadata bm25Metadata
	if err := json.NewDecoder(metadataFile).Decode(&metadata); err != nil {
		return semcheerrors.CorruptIndex(fmt.Sprintf("BM25 metadata file at %s is corrupt", metadataPath), err)
	}
	if len(metadata.CorpusTexts) != len(metadata.CorpusIDs) {
		return semcheerrors.CorruptIndex(
			fmt.Sprintf("BM25 metadata at %s has mismatched corpus_texts/corpus_ids lengths", metadataPath), nil)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.config = BM25Config{K1: indexSnapshot.K1, B: indexSnapshot.B}
	idx.invertedIndex = make(map[string]map[string]int, len(indexSnapshot.Postings))
	for term, list := range indexSnapshot.Postings {
		byDoc := make(map[string]int, len(list))
		for _, p := range list {
			byDoc[p.DocID] = p.TF
		}
		idx.invertedIndex[term] = byDoc
	}
	idx.docLengths = indexSnapshot.DocLen
	if idx.docLengths == nil {
		idx.docLengths = make(map[string]int)
	}

	idx.docIDs = make(map[string]struct{}, len(metadata.CorpusIDs))
	idx.docTexts = make(map[string]string, len(metadata.CorpusIDs))
	idx.seq = make(map[string]int, len(metadata.CorpusIDs))
	idx.totalLen = 0
	for i, id := range metadata.CorpusIDs {
		idx.docIDs[id] = struct{}{}
		idx.docTexts[id] = metadata.CorpusTexts[i]
		idx.seq[id] = i
		idx.totalLen += idx.docLengths[id]
	}
	idx.nextSeq = len(metadata.CorpusIDs)
	idx.totalDocs = indexSnapshot.N
	idx.built = true

	return nil
}

func writeGobAtomic(path string, v any) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return semcheerrors.BackendFailure("failed to create BM25 snapshot file", err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return semcheerrors.BackendFailure("failed to encode BM25 snapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return semcheerrors.BackendFailure("failed to flush BM25 snapshot", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return semcheerrors.BackendFailure("failed to finalize BM25 snapshot", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return semcheerrors.BackendFailure("failed to create BM25 metadata file", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return semcheerrors.BackendFailure("failed to encode BM25 metadata", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return semcheerrors.BackendFailure("failed to flush BM25 metadata", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return semcheerrors.BackendFailure("failed to finalize BM25 metadata", err)
	}
	return nil
}
