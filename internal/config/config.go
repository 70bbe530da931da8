package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semche configuration: collection
// storage location, hybrid retrieval tuning, the embedding backend,
// and MCP server transport/logging.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// StorageConfig configures where collections are persisted on disk.
type StorageConfig struct {
	// PersistDir is the base directory holding one subdirectory per
	// collection. Resolution order (highest precedence first):
	// explicit constructor argument, SEMCHE_CHROMA_DIR, then
	// DefaultPersistDir.
	PersistDir string `yaml:"persist_dir" json:"persist_dir"`
}

// SearchConfig configures hybrid retrieval fusion parameters.
//
// Weights and the RRF constant are configurable via, in order of
// increasing precedence:
//  1. hardcoded defaults
//  2. project config (.semche.yaml in the project root)
//  3. environment variables (SEMCHE_*)
type SearchConfig struct {
	// DenseWeight weights the vector (semantic) side of the fusion.
	DenseWeight float64 `yaml:"dense_weight" json:"dense_weight"`

	// SparseWeight weights the BM25 (keyword) side of the fusion.
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// RRFConstant is the reciprocal rank fusion smoothing parameter (k).
	// Default 60, the value used by most RRF implementations.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// BM25K1 and BM25B are the Okapi BM25 tuning parameters.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`

	// DefaultTopK is loaded and validated with the rest of the
	// configuration. The MCP search tool does not read it: a search
	// call that omits top_k returns up to 5 results.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`

	// FetchMultiplier controls how many candidates are requested from
	// each side of the fusion relative to top_k (candidates = top_k *
	// FetchMultiplier), so that fusion has enough overlap to work with.
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`
}

// EmbeddingsConfig configures the embedding provider used for the
// dense side of retrieval.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" (default,
	// queries a local Ollama daemon) or "static" (deterministic
	// hash-based fallback, used in offline/test environments).
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name passed to the provider.
	Model string `yaml:"model" json:"model"`

	// Dimensions pins the vector width. Zero means auto-detect from
	// the first embedding produced.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// Metric selects the vector distance metric: "cosine", "l2" or
	// "ip" (inner product).
	Metric string `yaml:"metric" json:"metric"`
}

// ServerConfig configures the MCP server transport and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

const (
	// EnvPersistDir is the environment variable overriding the
	// collection storage directory.
	EnvPersistDir = "SEMCHE_CHROMA_DIR"

	// DefaultPersistDir is used when neither an explicit directory nor
	// SEMCHE_CHROMA_DIR is provided.
	DefaultPersistDir = "./chroma_db"
)

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			PersistDir: ResolvePersistDir(""),
		},
		Search: SearchConfig{
			DenseWeight:     0.5,
			SparseWeight:    0.5,
			RRFConstant:     60,
			BM25K1:          1.5,
			BM25B:           0.75,
			DefaultTopK:     10,
			FetchMultiplier: 2,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			OllamaHost: "http://localhost:11434",
			Metric:     "cosine",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// ResolvePersistDir resolves the collection storage directory.
// Precedence: explicit argument, then SEMCHE_CHROMA_DIR, then
// DefaultPersistDir.
func ResolvePersistDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvPersistDir); v != "" {
		return v
	}
	return DefaultPersistDir
}

// Load loads configuration for the given project directory, applying
// defaults, then .semche.yaml (if present), then environment overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .semche.yaml or .semche.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".semche.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".semche.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.PersistDir != "" {
		c.Storage.PersistDir = other.Storage.PersistDir
	}

	if other.Search.DenseWeight != 0 {
		c.Search.DenseWeight = other.Search.DenseWeight
	}
	if other.Search.SparseWeight != 0 {
		c.Search.SparseWeight = other.Search.SparseWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.FetchMultiplier != 0 {
		c.Search.FetchMultiplier = other.Search.FetchMultiplier
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Metric != "" {
		c.Embeddings.Metric = other.Embeddings.Metric
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies SEMCHE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Storage.PersistDir = ResolvePersistDir(c.Storage.PersistDir)

	if v := os.Getenv("SEMCHE_DENSE_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.DenseWeight = w
		}
	}
	if v := os.Getenv("SEMCHE_SPARSE_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SparseWeight = w
		}
	}
	if v := os.Getenv("SEMCHE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("SEMCHE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SEMCHE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SEMCHE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEMCHE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for a .git directory or a .semche.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".semche.yaml")) ||
			fileExists(filepath.Join(currentDir, ".semche.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.DenseWeight < 0 || c.Search.DenseWeight > 1 {
		return fmt.Errorf("dense_weight must be between 0 and 1, got %f", c.Search.DenseWeight)
	}
	if c.Search.SparseWeight < 0 || c.Search.SparseWeight > 1 {
		return fmt.Errorf("sparse_weight must be between 0 and 1, got %f", c.Search.SparseWeight)
	}

	sum := c.Search.DenseWeight + c.Search.SparseWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("dense_weight + sparse_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.DefaultTopK < 0 {
		return fmt.Errorf("default_top_k must be non-negative, got %d", c.Search.DefaultTopK)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	validMetrics := map[string]bool{"cosine": true, "l2": true, "ip": true}
	if !validMetrics[strings.ToLower(c.Embeddings.Metric)] {
		return fmt.Errorf("embeddings.metric must be 'cosine', 'l2', or 'ip', got %s", c.Embeddings.Metric)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
