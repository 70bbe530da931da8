package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const binarySniffSize = 8192

// BulkConfig configures a bulk ingestion run over a set of input
// patterns, mirroring the bulk-ingestion CLI's argument surface.
type BulkConfig struct {
	Inputs          []string
	IDPrefix        string
	FileType        string
	FilterFromDate  *time.Time
	Ignore          []string
	UseRelativePath bool
	CWD             string
	Logger          *slog.Logger
}

// BulkResult summarizes a bulk ingestion run.
type BulkResult struct {
	Registered int
	Skipped    int
	Failed     []FileError
}

// FileError pairs a file path with the error encountered processing it.
type FileError struct {
	Path string
	Err  error
}

// RunBulk resolves cfg.Inputs to a set of files, embeds and upserts each
// one through p, and continues past per-file failures so a single bad
// file cannot abort an otherwise-successful batch.
func (p *Pipeline) RunBulk(ctx context.Context, cfg BulkConfig) (BulkResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cwd := cfg.CWD
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return BulkResult{}, err
		}
	}

	paths, err := ResolveInputs(cfg.Inputs, cfg.Ignore, cfg.FilterFromDate, cwd, logger)
	if err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for _, path := range paths {
		content, ok, readErr := ReadFileContent(path)
		if readErr != nil {
			logger.Warn("skipped (read error)", "path", path, "error", readErr)
			result.Failed = append(result.Failed, FileError{Path: path, Err: readErr})
			continue
		}
		if !ok {
			result.Skipped++
			continue
		}

		id := GenerateDocumentID(path, cwd, cfg.IDPrefix, cfg.UseRelativePath)

		_, putErr := p.Put(ctx, Request{Text: content, ID: id, FileType: cfg.FileType})
		if putErr != nil {
			logger.Warn("failed to embed", "path", path, "error", putErr)
			result.Failed = append(result.Failed, FileError{Path: path, Err: putErr})
			continue
		}

		result.Registered++
		logger.Info("processed", "id", id)
	}

	if result.Skipped > 0 {
		logger.Info("skipped files", "count", result.Skipped)
	}

	return result, nil
}

// ResolveInputs expands inputs (files, directories, or glob patterns
// containing * or **) to a sorted, deduplicated list of file paths,
// applying ignore patterns and an optional modification-date cutoff.
func ResolveInputs(inputs []string, ignorePatterns []string, filterDate *time.Time, cwd string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{})

	addFile := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		seen[abs] = struct{}{}
	}

	for _, input := range inputs {
		switch {
		case strings.Contains(input, "*"):
			pattern := input
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(cwd, pattern)
			}
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && !info.IsDir() {
					addFile(m)
				}
			}
		default:
			target := input
			if !filepath.IsAbs(target) {
				target = filepath.Join(cwd, target)
			}
			info, err := os.Stat(target)
			if err != nil {
				logger.Warn("input not found", "input", input)
				continue
			}
			if info.IsDir() {
				_ = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
					if err != nil {
						return nil
					}
					if !d.IsDir() {
						addFile(path)
					}
					return nil
				})
			} else {
				addFile(target)
			}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	filtered := make([]string, 0, len(paths))
	for _, path := range paths {
		if matchesAny(path, ignorePatterns) {
			logger.Debug("ignored (pattern match)", "path", path)
			continue
		}
		if filterDate != nil {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().Before(*filterDate) {
				logger.Debug("ignored (too old)", "path", path)
				continue
			}
		}
		filtered = append(filtered, path)
	}

	return filtered, nil
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, filepath.ToSlash(path)); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseDateFilter parses a --filter-from-date value, accepting a bare
// YYYY-MM-DD date or a full ISO-8601/RFC3339 timestamp.
func ParseDateFilter(value string) (time.Time, error) {
	layouts := []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// GenerateDocumentID derives a document id from a file's absolute path.
// When useRelative is true the id is the path relative to cwd;
// otherwise the absolute path is used. Separators are normalised to
// "/", and a non-empty prefix is joined as "prefix:path".
func GenerateDocumentID(absPath, cwd, prefix string, useRelative bool) string {
	idPath := absPath
	if useRelative {
		if rel, err := filepath.Rel(cwd, absPath); err == nil {
			idPath = rel
		}
	}
	idPath = filepath.ToSlash(idPath)

	if prefix != "" {
		return prefix + ":" + idPath
	}
	return idPath
}

// IsBinaryFile reports whether path looks binary by checking the first
// 8KiB for a NUL byte.
func IsBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return true, err
	}
	defer f.Close()

	buf := make([]byte, binarySniffSize)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return true, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}

// ReadFileContent reads path as UTF-8 text. It returns ok=false (with
// no error) for files that are binary or empty/whitespace-only after
// trimming, matching the bulk ingestion skip semantics.
func ReadFileContent(path string) (content string, ok bool, err error) {
	binary, err := IsBinaryFile(path)
	if err != nil {
		return "", false, err
	}
	if binary {
		return "", false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}

	if strings.TrimSpace(string(data)) == "" {
		return "", false, nil
	}

	return string(data), true, nil
}
