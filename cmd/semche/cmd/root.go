// Package cmd provides the CLI commands for semche.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/paterapatera/semche/internal/config"
	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/ingest"
	"github.com/paterapatera/semche/internal/logging"
	"github.com/paterapatera/semche/internal/mcp"
	"github.com/paterapatera/semche/internal/retrieve"
	"github.com/paterapatera/semche/internal/store"
	"github.com/paterapatera/semche/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the semche CLI. Running
// 'semche' with no subcommand starts the MCP server directly over
// stdio: the request surface is the only thing a tool-host client ever
// talks to.
func NewRootCmd() *cobra.Command {
	var offline bool
	var persistDir string

	cmd := &cobra.Command{
		Use:   "semche",
		Short: "Local-first hybrid document retrieval MCP server",
		Long: `semche is a locally-persisted hybrid (dense + BM25) document
retrieval service exposed as an MCP tool surface: put_document,
search, delete_document, and get_documents_by_prefix.

Run 'semche' with no arguments to start the server on stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runServe(cmd.Context(), offline, persistDir)
		},
	}

	cmd.SetVersionTemplate("semche version {{.Version}}\n")

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip the Ollama daemon)")
	cmd.Flags().StringVar(&persistDir, "chroma-dir", "", "Collection storage directory (default: $SEMCHE_CHROMA_DIR or ./chroma_db)")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.semche/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging wires up file-based debug logging if --debug is set.
// The MCP transport requires stdout to carry JSON-RPC exclusively, so
// all diagnostic output goes to the log file (and optionally stderr),
// never stdout.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))

	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runServe wires the collection's storage, retrieval, and ingestion
// layers together and serves the MCP tool surface on stdio until the
// context is cancelled.
func runServe(ctx context.Context, offline bool, persistDirFlag string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if persistDirFlag != "" {
		cfg.Storage.PersistDir = persistDirFlag
	}
	if offline {
		cfg.Embeddings.Provider = string(embed.ProviderStatic)
	}

	vectors := store.NewSQLiteVectorStore(store.VectorStoreConfig{
		Metric:   store.Metric(cfg.Embeddings.Metric),
		M:        16,
		EfSearch: 64,
	})
	if err := vectors.Load(cfg.Storage.PersistDir); err != nil {
		return fmt.Errorf("failed to open collection at %s: %w", cfg.Storage.PersistDir, err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model, cfg.Embeddings.OllamaHost)
	if err != nil {
		_ = vectors.Close()
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	tokenizer, err := resolveTokenizer()
	if err != nil {
		_ = vectors.Close()
		return fmt.Errorf("failed to construct tokenizer: %w", err)
	}

	dense := retrieve.NewDenseRetriever(vectors, embedder)
	sparse := retrieve.NewSparseRetriever(vectors, tokenizer, store.BM25Config{K1: cfg.Search.BM25K1, B: cfg.Search.BM25B})
	hybrid := retrieve.NewHybridRetriever(dense, sparse, retrieve.HybridConfig{
		DenseWeight:     cfg.Search.DenseWeight,
		SparseWeight:    cfg.Search.SparseWeight,
		RRFConstant:     cfg.Search.RRFConstant,
		FetchMultiplier: cfg.Search.FetchMultiplier,
	})
	pipeline := ingest.NewPipeline(vectors, embedder)

	srv, err := mcp.NewServer(vectors, hybrid, pipeline, cfg.Storage.PersistDir, cfg)
	if err != nil {
		_ = vectors.Close()
		return fmt.Errorf("failed to construct MCP server: %w", err)
	}
	defer srv.Close()

	slog.Info("semche ready",
		slog.String("persist_dir", cfg.Storage.PersistDir),
		slog.String("embeddings_provider", cfg.Embeddings.Provider),
		slog.Int("documents", vectors.Count()))

	return srv.Serve(ctx)
}

// resolveTokenizer honors SEMCHE_BM25_BACKEND_TOKENIZER=fallback to force
// the dependency-free tokenizer without a code change. Any other value
// (including unset) constructs the morphological tokenizer directly: per
// spec, construction of any component requiring the default tokenizer
// fails with TokenizerUnavailable rather than silently degrading to the
// fallback. Silent degradation is only ever explicit and operator-chosen,
// never automatic.
func resolveTokenizer() (store.Tokenizer, error) {
	if os.Getenv("SEMCHE_BM25_BACKEND_TOKENIZER") == "fallback" {
		return store.NewFallbackTokenizer(), nil
	}
	return store.NewMorphTokenizer()
}
