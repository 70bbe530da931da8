// Package ingest implements the single-document and bulk ingestion
// paths that turn raw text into a Vector Store upsert.
package ingest

import (
	"context"
	"math"
	"strings"
	"time"

	semcheerrors "github.com/paterapatera/semche/internal/errors"

	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/store"
)

// Request is a single document to ingest.
type Request struct {
	Text      string
	ID        string
	FileType  string
	Normalize bool
}

// Result reports the outcome of a successful ingestion.
type Result struct {
	ID              string
	VectorDimension int
	Normalized      bool
}

// Pipeline embeds and upserts documents one at a time into a Vector
// Store. The bulk variant (bulk.go) drives the same per-document steps
// over every file resolved from a set of input patterns.
type Pipeline struct {
	vectors  store.VectorStore
	embedder embed.Embedder
}

// NewPipeline creates a Pipeline over the given vector store and embedder.
func NewPipeline(vectors store.VectorStore, embedder embed.Embedder) *Pipeline {
	return &Pipeline{vectors: vectors, embedder: embedder}
}

// Put embeds req.Text and upserts it into the vector store as a single
// atomic document, keyed by req.ID.
func (p *Pipeline) Put(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, semcheerrors.Validation("text must not be empty", nil)
	}
	if strings.TrimSpace(req.ID) == "" {
		return Result{}, semcheerrors.Validation("id must not be empty", nil)
	}

	vec, err := p.embedder.Embed(ctx, req.Text)
	if err != nil {
		return Result{}, semcheerrors.Embedding("failed to embed document", err)
	}

	normalized := false
	if req.Normalize {
		if n := l2Norm(vec); n > 0 {
			vec = scaleInPlace(vec, 1/n)
			normalized = true
		}
	}

	updatedAt := time.Now().UTC().Format(time.RFC3339)
	doc := store.Document{
		ID:        req.ID,
		Content:   req.Text,
		Embedding: vec,
		UpdatedAt: updatedAt,
		Metadata: map[string]string{
			"filepath":   req.ID,
			"updated_at": updatedAt,
			"file_type":  req.FileType,
		},
	}

	if err := p.vectors.Upsert(ctx, []store.Document{doc}); err != nil {
		return Result{}, err
	}

	return Result{ID: req.ID, VectorDimension: len(vec), Normalized: normalized}, nil
}

func l2Norm(v []float32) float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sumSquares))
}

func scaleInPlace(v []float32, factor float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * factor
	}
	return out
}
