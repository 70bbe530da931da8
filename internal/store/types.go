// Package store provides the persistence layer for semche collections:
// a BM25 keyword index, an HNSW-backed vector store, and the SQLite
// metadata table that backs both.
package store

import (
	"context"
	"fmt"
)

// Document is a single retrievable unit stored in a collection. Its ID
// doubles as the document's logical identity for upsert/delete and, for
// documents ingested from the filesystem, as its source file path
// (invariant: metadata["filepath"] == ID for file-backed documents).
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
	UpdatedAt string // ISO-8601, set by the ingestion pipeline
}

// BM25Result is a single keyword-search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats summarizes the current state of the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides Okapi BM25 keyword search over a corpus of documents.
type BM25Index interface {
	// Add inserts or replaces documents in the index.
	Add(ctx context.Context, docs []Document) error

	// Search returns the topK documents best matching query, scored by BM25.
	Search(ctx context.Context, query string, topK int) ([]BM25Result, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns every document ID currently indexed.
	AllIDs() []string

	// Stats reports corpus-level statistics.
	Stats() IndexStats

	// Save and Load persist and restore index state to/from dir.
	Save(dir string) error
	Load(dir string) error
}

// BM25Config configures Okapi BM25 scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64
	// B is the document length normalization parameter.
	B float64
}

// DefaultBM25Config returns the configuration used when none is supplied.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// VectorResult is a single nearest-neighbor search hit.
type VectorResult struct {
	ID       string
	Distance float32 // raw HNSW distance; interpretation depends on Metric
	Score    float32 // similarity in [0, 1], derived from Distance and Metric
}

// Metric selects the vector distance function used by a vector store.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricIP     Metric = "ip"
)

// VectorStoreConfig configures the HNSW-backed vector store.
type VectorStoreConfig struct {
	// Dimensions pins the vector width for the collection. Zero means
	// "not yet pinned" — it is set from the first inserted vector.
	Dimensions int

	// Metric selects the distance function.
	Metric Metric

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for a fresh collection.
func DefaultVectorStoreConfig(metric Metric) VectorStoreConfig {
	if metric == "" {
		metric = MetricCosine
	}
	return VectorStoreConfig{
		Metric:   metric,
		M:        16,
		EfSearch: 64,
	}
}

// VectorStore provides approximate nearest-neighbor search and the
// document/metadata table backing a collection.
type VectorStore interface {
	// Upsert inserts or replaces a document (content, metadata, and
	// embedding) in a single atomic operation.
	Upsert(ctx context.Context, docs []Document) error

	// GetByIDs retrieves documents by ID. Missing IDs are simply absent
	// from the result, not an error.
	GetByIDs(ctx context.Context, ids []string) ([]Document, error)

	// GetByPrefix retrieves every document whose ID (filepath) starts
	// with prefix.
	GetByPrefix(ctx context.Context, prefix string) ([]Document, error)

	// GetAll retrieves every document in the collection, for BM25
	// corpus rebuilds and consistency checks.
	GetAll(ctx context.Context) ([]Document, error)

	// Delete removes documents by ID and reports how many existed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Query performs a k-nearest-neighbor search against the HNSW graph.
	Query(ctx context.Context, vector []float32, k int) ([]VectorResult, error)

	// Dimensions returns the pinned vector width, or 0 if no document
	// has been inserted yet.
	Dimensions() int

	// Count returns the number of documents in the collection.
	Count() int

	// Save and Load persist and restore store state to/from dir.
	Save(dir string) error
	Load(dir string) error

	// Close releases file handles (sqlite connection, directory lock).
	Close() error
}

// ErrDimensionMismatch indicates a vector's width does not match the
// collection's pinned dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: collection expects %d-dimensional vectors, got %d", e.Expected, e.Got)
}
