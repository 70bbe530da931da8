package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

const (
	vectorGraphFile = "vectors.hnsw"
	vectorMetaFile  = "vectors.meta"
	documentsDBFile = "documents.db"
	lockFileName    = ".semche.lock"
)

// SQLiteVectorStore implements VectorStore with a coder/hnsw graph for
// approximate nearest-neighbor search and a modernc.org/sqlite table for
// document content and metadata. A gofrs/flock directory lock enforces
// the single-writer discipline a pure-Go, file-backed index needs when
// the MCP server and the bulk ingestion CLI might otherwise touch the
// same collection concurrently.
type SQLiteVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	db     *sql.DB
	lock   *flock.Flock
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	dims   int
	dir    string
	opened bool
	closed bool
}

var _ VectorStore = (*SQLiteVectorStore)(nil)

// vectorStoreMeta is the gob-encoded shape persisted alongside the HNSW
// graph export; it carries the string<->uint64 ID mapping the graph
// itself has no notion of.
type vectorStoreMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewSQLiteVectorStore constructs a store using the given metric and
// HNSW tuning. The store touches no disk state until Load is called.
func NewSQLiteVectorStore(cfg VectorStoreConfig) *SQLiteVectorStore {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = distanceFuncFor(cfg.Metric)
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &SQLiteVectorStore{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
		dims:    cfg.Dimensions,
	}
}

func distanceFuncFor(metric Metric) hnsw.DistanceFunc {
	switch metric {
	case MetricL2:
		return hnsw.EuclideanDistance
	case MetricIP:
		return hnsw.CosineDistance // coder/hnsw has no dedicated dot-product distance; vectors are pre-normalized
	default:
		return hnsw.CosineDistance
	}
}

// Load opens the backing SQLite database and directory lock (if not
// already open) and restores any persisted HNSW graph from dir. A
// missing graph file is not an error: the store simply starts empty.
func (s *SQLiteVectorStore) Load(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return semcheerrors.BackendFailure("vector store is closed", nil)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return semcheerrors.BackendFailure("failed to create collection directory", err)
	}

	if s.lock == nil {
		lockPath := filepath.Join(dir, lockFileName)
		l := flock.New(lockPath)
		acquired, err := l.TryLock()
		if err != nil {
			return semcheerrors.BackendFailure("failed to acquire collection lock", err)
		}
		if !acquired {
			return semcheerrors.BackendFailure(
				fmt.Sprintf("collection at %s is locked by another process", dir), nil)
		}
		s.lock = l
	}

	if s.db == nil {
		dbPath := filepath.Join(dir, documentsDBFile)
		dsn := dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return semcheerrors.BackendFailure("failed to open document store", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return semcheerrors.BackendFailure("failed to configure document store", err)
			}
		}

		schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		);`
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return semcheerrors.BackendFailure("failed to initialize document store schema", err)
		}

		s.db = db
		s.dir = dir
	}

	if err := s.loadGraphLocked(dir); err != nil {
		return err
	}

	s.opened = true
	return nil
}

func (s *SQLiteVectorStore) loadGraphLocked(dir string) error {
	metaPath := filepath.Join(dir, vectorMetaFile)
	metaFile, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return semcheerrors.BackendFailure("failed to open vector index metadata", err)
	}
	defer metaFile.Close()

	var meta vectorStoreMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return semcheerrors.CorruptIndex("vector index metadata is corrupt", err)
	}

	graphPath := filepath.Join(dir, vectorGraphFile)
	graphFile, err := os.Open(graphPath)
	if err != nil {
		return semcheerrors.CorruptIndex("vector index metadata present but graph export is missing", err)
	}
	defer graphFile.Close()

	reader := bufio.NewReader(graphFile)
	if err := s.graph.Import(reader); err != nil {
		return semcheerrors.CorruptIndex("failed to import HNSW graph", err)
	}

	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	s.nextKey = meta.NextKey
	if meta.Config.Dimensions != 0 {
		s.dims = meta.Config.Dimensions
	}

	return nil
}

// Save persists the HNSW graph, the ID mapping, and forces a WAL
// checkpoint on the document table.
func (s *SQLiteVectorStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return semcheerrors.BackendFailure("vector store has not been opened", nil)
	}

	graphPath := filepath.Join(dir, vectorGraphFile)
	tmpGraphPath := graphPath + ".tmp"
	gf, err := os.Create(tmpGraphPath)
	if err != nil {
		return semcheerrors.BackendFailure("failed to create HNSW graph export file", err)
	}
	if err := s.graph.Export(gf); err != nil {
		gf.Close()
		os.Remove(tmpGraphPath)
		return semcheerrors.BackendFailure("failed to export HNSW graph", err)
	}
	if err := gf.Close(); err != nil {
		os.Remove(tmpGraphPath)
		return semcheerrors.BackendFailure("failed to flush HNSW graph export", err)
	}
	if err := os.Rename(tmpGraphPath, graphPath); err != nil {
		return semcheerrors.BackendFailure("failed to finalize HNSW graph export", err)
	}

	metaPath := filepath.Join(dir, vectorMetaFile)
	tmpMetaPath := metaPath + ".tmp"
	mf, err := os.Create(tmpMetaPath)
	if err != nil {
		return semcheerrors.BackendFailure("failed to create vector index metadata file", err)
	}
	cfg := s.config
	cfg.Dimensions = s.dims
	meta := vectorStoreMeta{IDMap: s.idMap, NextKey: s.nextKey, Config: cfg}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(tmpMetaPath)
		return semcheerrors.BackendFailure("failed to encode vector index metadata", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(tmpMetaPath)
		return semcheerrors.BackendFailure("failed to flush vector index metadata", err)
	}
	if err := os.Rename(tmpMetaPath, metaPath); err != nil {
		return semcheerrors.BackendFailure("failed to finalize vector index metadata", err)
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return semcheerrors.BackendFailure("failed to checkpoint document store", err)
	}

	return nil
}

// Upsert inserts or replaces documents (content, metadata, and
// embedding) in a single atomic operation per document.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return semcheerrors.BackendFailure("vector store has not been opened", nil)
	}

	for _, doc := range docs {
		if len(doc.Embedding) > 0 {
			if s.dims == 0 {
				s.dims = len(doc.Embedding)
			} else if len(doc.Embedding) != s.dims {
				return semcheerrors.DimensionMismatch(
					ErrDimensionMismatch{Expected: s.dims, Got: len(doc.Embedding)}.Error(), nil)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return semcheerrors.BackendFailure("failed to begin document transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents(id, content, metadata, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content=excluded.content, metadata=excluded.metadata, updated_at=excluded.updated_at`)
	if err != nil {
		return semcheerrors.BackendFailure("failed to prepare document upsert", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return semcheerrors.Validation(fmt.Sprintf("document %s has unencodable metadata", doc.ID), err)
		}
		updatedAt := doc.UpdatedAt
		if updatedAt == "" {
			updatedAt = time.Now().UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, string(metaJSON), updatedAt); err != nil {
			return semcheerrors.BackendFailure(fmt.Sprintf("failed to upsert document %s", doc.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return semcheerrors.BackendFailure("failed to commit document transaction", err)
	}

	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if existingKey, exists := s.idMap[doc.ID]; exists {
			delete(s.keyMap, existingKey) // lazy delete: coder/hnsw does not support removing the last node cleanly
			delete(s.idMap, doc.ID)
		}

		vec := make([]float32, len(doc.Embedding))
		copy(vec, doc.Embedding)
		if s.config.Metric == MetricCosine || s.config.Metric == MetricIP {
			normalizeInPlace(vec)
		}

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[doc.ID] = key
		s.keyMap[key] = doc.ID
	}

	return nil
}

func rowsToDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var doc Document
		var metaJSON string
		if err := rows.Scan(&doc.ID, &doc.Content, &metaJSON, &doc.UpdatedAt); err != nil {
			return nil, semcheerrors.BackendFailure("failed to scan document row", err)
		}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
				return nil, semcheerrors.CorruptIndex("document metadata is not valid JSON", err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetByIDs retrieves documents by ID.
func (s *SQLiteVectorStore) GetByIDs(ctx context.Context, ids []string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return nil, semcheerrors.BackendFailure("vector store has not been opened", nil)
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("SELECT id, content, metadata, updated_at FROM documents WHERE id IN (%s)", placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, semcheerrors.BackendFailure("failed to query documents by ID", err)
	}
	return rowsToDocuments(rows)
}

// GetByPrefix retrieves every document whose ID starts with prefix.
func (s *SQLiteVectorStore) GetByPrefix(ctx context.Context, prefix string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return nil, semcheerrors.BackendFailure("vector store has not been opened", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, updated_at FROM documents WHERE id GLOB ? ORDER BY id`,
		prefix+"*")
	if err != nil {
		return nil, semcheerrors.BackendFailure("failed to query documents by prefix", err)
	}
	return rowsToDocuments(rows)
}

// GetAll retrieves every document in the collection.
func (s *SQLiteVectorStore) GetAll(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return nil, semcheerrors.BackendFailure("vector store has not been opened", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, semcheerrors.BackendFailure("failed to query all documents", err)
	}
	return rowsToDocuments(rows)
}

// Delete removes documents by ID and reports how many existed.
func (s *SQLiteVectorStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, semcheerrors.BackendFailure("vector store has not been opened", nil)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM documents WHERE id IN (%s)", placeholders)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, semcheerrors.BackendFailure("failed to delete documents", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, semcheerrors.BackendFailure("failed to count deleted documents", err)
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	return int(affected), nil
}

// Query performs a k-nearest-neighbor search against the HNSW graph.
func (s *SQLiteVectorStore) Query(ctx context.Context, vector []float32, k int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.opened {
		return nil, semcheerrors.BackendFailure("vector store has not been opened", nil)
	}
	if s.dims != 0 && len(vector) != s.dims {
		return nil, semcheerrors.DimensionMismatch(
			ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}.Error(), nil)
	}
	if s.graph.Len() == 0 {
		return []VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	if s.config.Metric == MetricCosine || s.config.Metric == MetricIP {
		normalizeInPlace(query)
	}

	nodes := s.graph.Search(query, k)
	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}
		distance := s.graph.Distance(query, node.Value)
		results = append(results, VectorResult{
			ID:       id,
			Distance: distance,
			Score:    scoreFromDistance(distance, s.config.Metric),
		})
	}

	return results, nil
}

// Dimensions returns the pinned vector width, or 0 if unset.
func (s *SQLiteVectorStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Count returns the number of live (non-orphaned) vectors.
func (s *SQLiteVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Close releases the sqlite connection and the directory lock.
func (s *SQLiteVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.db != nil {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.graph = nil

	if firstErr != nil {
		return semcheerrors.BackendFailure("failed to close vector store cleanly", firstErr)
	}
	return nil
}

// normalizeInPlace scales v to unit length. A zero vector is left as-is.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// scoreFromDistance converts a raw HNSW distance into a [0,1]-ish
// similarity score. Cosine distance from coder/hnsw ranges [0, 2];
// Euclidean distance is unbounded, so it uses the standard 1/(1+d) map.
// An ip graph measures cosine distance over normalized vectors (see
// distanceFuncFor), so its distance takes the cosine conversion.
func scoreFromDistance(distance float32, metric Metric) float32 {
	switch metric {
	case MetricL2:
		return 1.0 / (1.0 + distance)
	case MetricIP:
		return 1.0 - distance/2.0
	default:
		return 1.0 - distance/2.0
	}
}
