// Command doc-update bulk-registers documents (files, directories, or
// ** glob patterns) into a semche collection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/paterapatera/semche/internal/config"
	"github.com/paterapatera/semche/internal/embed"
	"github.com/paterapatera/semche/internal/ingest"
	"github.com/paterapatera/semche/internal/store"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var idPrefix string
	var fileType string
	var filterFromDate string
	var ignore []string
	var chromaDir string
	var useRelativePath bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "doc-update <inputs...>",
		Short: "Bulk-register documents to a semche collection",
		Long: `doc-update embeds and upserts files, directories, or ** glob
patterns into a semche collection.

Examples:
  doc-update ./docs/**/*.md --file-type note
  doc-update ./project --id-prefix myproject --file-type code
  doc-update ./wiki --filter-from-date 2026-01-01 --ignore "**/.git/**"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				inputs:          args,
				idPrefix:        idPrefix,
				fileType:        fileType,
				filterFromDate:  filterFromDate,
				ignore:          ignore,
				chromaDir:       chromaDir,
				useRelativePath: useRelativePath,
				offline:         offline,
			})
		},
	}

	cmd.Flags().StringVar(&idPrefix, "id-prefix", "", "Prefix for document IDs (e.g. 'abc' -> 'abc:path/to/file.md')")
	cmd.Flags().StringVar(&fileType, "file-type", "none", "file_type metadata value to record on every registered document")
	cmd.Flags().StringVar(&filterFromDate, "filter-from-date", "", "Only register files modified after this date (YYYY-MM-DD or ISO-8601)")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "Glob pattern to ignore (repeatable)")
	cmd.Flags().StringVar(&chromaDir, "chroma-dir", "", "Collection storage directory (overrides SEMCHE_CHROMA_DIR)")
	cmd.Flags().BoolVar(&useRelativePath, "use-relative-path", false, "Use paths relative to the working directory as document IDs")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip the Ollama daemon)")

	return cmd
}

type runOptions struct {
	inputs          []string
	idPrefix        string
	fileType        string
	filterFromDate  string
	ignore          []string
	chromaDir       string
	useRelativePath bool
	offline         bool
}

func run(ctx context.Context, opts runOptions) error {
	logger := slog.Default()

	bulkCfg := ingest.BulkConfig{
		Inputs:          opts.inputs,
		IDPrefix:        opts.idPrefix,
		FileType:        opts.fileType,
		Ignore:          opts.ignore,
		UseRelativePath: opts.useRelativePath,
		Logger:          logger,
	}

	if opts.filterFromDate != "" {
		cutoff, err := ingest.ParseDateFilter(opts.filterFromDate)
		if err != nil {
			return fmt.Errorf("invalid --filter-from-date: %w", err)
		}
		bulkCfg.FilterFromDate = &cutoff
		logger.Info("filtering files modified after", slog.Time("cutoff", cutoff))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	bulkCfg.CWD = cwd

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.chromaDir != "" {
		cfg.Storage.PersistDir = opts.chromaDir
	}
	if opts.offline {
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
	defer vectors.Close()
	logger.Info("collection directory", slog.String("path", cfg.Storage.PersistDir))

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), cfg.Embeddings.Model, cfg.Embeddings.OllamaHost)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer embedder.Close()

	pipeline := ingest.NewPipeline(vectors, embedder)

	logger.Info("resolving input files...")
	result, err := pipeline.RunBulk(ctx, bulkCfg)
	if err != nil {
		return fmt.Errorf("failed to resolve inputs: %w", err)
	}

	if result.Registered == 0 {
		for _, f := range result.Failed {
			logger.Error("failed to process file", slog.String("path", f.Path), slog.String("error", f.Err.Error()))
		}
		return fmt.Errorf("no documents registered (all files skipped or failed)")
	}

	logger.Info("registration complete",
		slog.Int("registered", result.Registered),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Failed)))

	return nil
}
