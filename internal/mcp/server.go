package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	semcheerrors "github.com/paterapatera/semche/internal/errors"

	"github.com/paterapatera/semche/internal/config"
	"github.com/paterapatera/semche/internal/ingest"
	"github.com/paterapatera/semche/internal/retrieve"
	"github.com/paterapatera/semche/internal/store"
	"github.com/paterapatera/semche/pkg/version"
)

// CollectionName is the fixed name of the single default collection
// served by the Request Surface.
const CollectionName = "documents"

// Server is the MCP server for semche, bridging tool-host clients
// (Claude Code, Cursor, or any MCP client) with the hybrid retrieval
// pipeline.
type Server struct {
	mcp *mcp.Server

	vectors    store.VectorStore
	hybrid     *retrieve.HybridRetriever
	pipeline   *ingest.Pipeline
	persistDir string
	config     *config.Config
	logger     *slog.Logger

	mu sync.RWMutex
}

// NewServer creates a new MCP server over an already-opened vector
// store, hybrid retriever, and ingestion pipeline.
func NewServer(vectors store.VectorStore, hybrid *retrieve.HybridRetriever, pipeline *ingest.Pipeline, persistDir string, cfg *config.Config) (*Server, error) {
	if vectors == nil {
		return nil, errors.New("vector store is required")
	}
	if hybrid == nil {
		return nil, errors.New("hybrid retriever is required")
	}
	if pipeline == nil {
		return nil, errors.New("ingestion pipeline is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		vectors:    vectors,
		hybrid:     hybrid,
		pipeline:   pipeline,
		persistDir: persistDir,
		config:     cfg,
		logger:     slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "semche", Version: version.Version},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers the four Request Surface tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "put_document",
		Description: "Embed a document's text and upsert it into the collection under the given filepath id.",
	}, s.handlePutDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid (dense + BM25) search over the collection, fused by reciprocal rank fusion.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document from the collection by its filepath id.",
	}, s.handleDeleteDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_documents_by_prefix",
		Description: "List documents whose id starts with the given prefix, optionally filtered by file_type.",
	}, s.handleGetDocumentsByPrefix)

	s.logger.Info("registered MCP tools", slog.Int("count", 4))
}

func (s *Server) handlePutDocument(ctx context.Context, _ *mcp.CallToolRequest, input PutDocumentInput) (_ *mcp.CallToolResult, out PutDocumentOutput, _ error) {
	defer recoverTool(&out, func(o *PutDocumentOutput, message, errType string) {
		o.Status, o.Message, o.ErrorType = "error", message, errType
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pipeline.Put(ctx, ingest.Request{
		Text:      input.Text,
		ID:        input.Filepath,
		FileType:  input.FileType,
		Normalize: input.Normalize,
	})
	if err != nil {
		return nil, PutDocumentOutput{
			Status:    "error",
			Message:   err.Error(),
			ErrorType: errorType(err),
		}, nil
	}

	return nil, PutDocumentOutput{
		Status:  "success",
		Message: "document stored",
		Details: PutDocumentDetail{
			Count:            1,
			Collection:       CollectionName,
			Filepath:         result.ID,
			VectorDimension:  result.VectorDimension,
			PersistDirectory: s.persistDir,
			Normalized:       result.Normalized,
		},
	}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (_ *mcp.CallToolResult, out SearchOutput, _ error) {
	defer recoverTool(&out, func(o *SearchOutput, message, errType string) {
		o.Status, o.Message, o.ErrorType = "error", message, errType
	})

	s.mu.RLock()
	defer s.mu.RUnlock()

	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	includeDocuments := true
	if input.IncludeDocuments != nil {
		includeDocuments = *input.IncludeDocuments
	}

	var predicate retrieve.MetadataPredicate
	if input.FileType != "" {
		predicate = retrieve.MetadataPredicate{"file_type": input.FileType}
	}

	hits, err := s.hybrid.Search(ctx, input.Query, topK, predicate)
	if err != nil {
		return nil, SearchOutput{
			Status:    "error",
			Message:   err.Error(),
			ErrorType: errorType(err),
		}, nil
	}

	results := make([]SearchResultItem, 0, len(hits))
	for _, h := range hits {
		item := SearchResultItem{
			Filepath: h.ID,
			Score:    h.Score,
			Metadata: h.Metadata,
		}
		if includeDocuments {
			item.Document = truncateContent(h.Document, input.MaxContentLength)
		}
		results = append(results, item)
	}

	return nil, SearchOutput{
		Status:               "success",
		Message:              "search completed",
		Results:              results,
		Count:                len(results),
		QueryVectorDimension: s.vectors.Dimensions(),
		PersistDirectory:     s.persistDir,
	}, nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, _ *mcp.CallToolRequest, input DeleteDocumentInput) (_ *mcp.CallToolResult, out DeleteDocumentOutput, _ error) {
	defer recoverTool(&out, func(o *DeleteDocumentOutput, message, errType string) {
		o.Status, o.Message, o.ErrorType = "error", message, errType
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(input.Filepath) == "" {
		err := semcheerrors.Validation("filepath must not be empty", nil)
		return nil, DeleteDocumentOutput{
			Status:    "error",
			Message:   err.Error(),
			ErrorType: errorType(err),
		}, nil
	}

	count, err := s.vectors.Delete(ctx, []string{input.Filepath})
	if err != nil {
		return nil, DeleteDocumentOutput{
			Status:    "error",
			Message:   err.Error(),
			ErrorType: errorType(err),
		}, nil
	}

	message := "document deleted"
	if count == 0 {
		message = "no document found at that filepath"
	}

	return nil, DeleteDocumentOutput{
		Status:           "success",
		Message:          message,
		DeletedCount:     count,
		Filepath:         input.Filepath,
		Collection:       CollectionName,
		PersistDirectory: s.persistDir,
	}, nil
}

func (s *Server) handleGetDocumentsByPrefix(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentsByPrefixInput) (_ *mcp.CallToolResult, out GetDocumentsByPrefixOutput, _ error) {
	defer recoverTool(&out, func(o *GetDocumentsByPrefixOutput, message, errType string) {
		o.Status, o.Message, o.ErrorType = "error", message, errType
	})

	s.mu.RLock()
	defer s.mu.RUnlock()

	includeDocuments := true
	if input.IncludeDocuments != nil {
		includeDocuments = *input.IncludeDocuments
	}

	docs, err := s.vectors.GetByPrefix(ctx, input.Prefix)
	if err != nil {
		return nil, GetDocumentsByPrefixOutput{
			Status:    "error",
			Message:   err.Error(),
			ErrorType: errorType(err),
			Prefix:    input.Prefix,
			FileType:  input.FileType,
		}, nil
	}

	results := make([]PrefixResultItem, 0, len(docs))
	for _, d := range docs {
		if input.FileType != "" && d.Metadata["file_type"] != input.FileType {
			continue
		}
		item := PrefixResultItem{ID: d.ID, Metadata: d.Metadata}
		if includeDocuments {
			item.Document = d.Content
		}
		results = append(results, item)
		if input.TopK > 0 && len(results) >= input.TopK {
			break
		}
	}

	return nil, GetDocumentsByPrefixOutput{
		Status:           "success",
		Prefix:           input.Prefix,
		FileType:         input.FileType,
		IncludeDocuments: includeDocuments,
		TopK:             input.TopK,
		Count:            len(results),
		Results:          results,
	}, nil
}

// truncateContent truncates body to maxLen runes, appending an
// ellipsis, when maxLen is positive and shorter than the body.
func truncateContent(body string, maxLen int) string {
	if maxLen <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}
	return string(runes[:maxLen]) + "..."
}

// Serve starts the server on the stdio transport, the only transport
// the Request Surface supports.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// Close releases the underlying vector store's resources.
func (s *Server) Close() error {
	return s.vectors.Close()
}
