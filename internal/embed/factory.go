package embed

import (
	"context"
	"log/slog"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama queries a local Ollama daemon for embeddings.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses a deterministic hash-based embedder. Used in
	// offline or test environments where no Ollama daemon is reachable.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for the given provider, model and
// endpoint. If provider is ProviderOllama and no Ollama daemon is
// reachable, it falls back to the static embedder so that ingestion and
// search keep working in a degraded but deterministic mode.
func NewEmbedder(ctx context.Context, provider ProviderType, model, ollamaHost string) (Embedder, error) {
	switch ProviderType(strings.ToLower(string(provider))) {
	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderOllama, "":
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:  ollamaHost,
			Model: model,
		})
		if err != nil {
			slog.Warn("ollama embedder unavailable, falling back to static embeddings",
				slog.String("error", err.Error()))
			return NewStaticEmbedder(), nil
		}
		return e, nil

	default:
		return NewStaticEmbedder(), nil
	}
}
