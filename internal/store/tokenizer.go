package store

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

// Tokenizer splits text into the terms the BM25 index scores against.
type Tokenizer interface {
	Tokenize(text string) []string
}

// MorphTokenizer performs dictionary-backed morphological segmentation
// over mixed CJK and Latin text using gse. Both the CJK and the Latin
// runs are split by gse's own segmentation; there is no separate
// whitespace pass.
type MorphTokenizer struct {
	seg *gse.Segmenter
}

var (
	defaultDict     gse.Segmenter
	defaultDictOnce sync.Once
	defaultDictErr  error
)

// loadDefaultDict loads gse's bundled small Chinese/English dictionary
// exactly once per process; every MorphTokenizer shares the result.
func loadDefaultDict() (*gse.Segmenter, error) {
	defaultDictOnce.Do(func() {
		defaultDictErr = defaultDict.LoadDict()
	})
	if defaultDictErr != nil {
		return nil, defaultDictErr
	}
	return &defaultDict, nil
}

// NewMorphTokenizer creates a tokenizer backed by gse's default
// dictionary. Returns a TokenizerUnavailable error if the dictionary
// fails to load.
func NewMorphTokenizer() (*MorphTokenizer, error) {
	seg, err := loadDefaultDict()
	if err != nil {
		return nil, semcheerrors.TokenizerUnavailable("failed to load morphological tokenizer dictionary", err)
	}
	return &MorphTokenizer{seg: seg}, nil
}

// Tokenize segments text into lowercased terms, discarding pure
// whitespace and punctuation segments.
func (t *MorphTokenizer) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := t.seg.Cut(text, true)
	tokens := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || !containsWordRune(seg) {
			continue
		}
		tokens = append(tokens, strings.ToLower(seg))
	}
	return tokens
}

// FallbackTokenizer is a dependency-free whitespace-and-case-fold
// tokenizer used when the morphological dictionary is unavailable.
// Matches the behavior of a plain-text fallback: split on whitespace,
// lowercase, strip surrounding punctuation.
type FallbackTokenizer struct{}

// NewFallbackTokenizer creates a FallbackTokenizer.
func NewFallbackTokenizer() *FallbackTokenizer {
	return &FallbackTokenizer{}
}

// Tokenize splits text on whitespace, strips leading and trailing
// punctuation from each field, lowercases it, and drops fields left empty.
func (t *FallbackTokenizer) Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if f == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

// containsWordRune reports whether s has at least one letter or digit,
// filtering out segments that are pure punctuation.
func containsWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// NewTokenizer returns the morphological tokenizer, falling back to the
// dependency-free tokenizer if the dictionary cannot be loaded. Unlike
// NewMorphTokenizer, this constructor never fails: callers that need to
// surface TokenizerUnavailable should call NewMorphTokenizer directly.
func NewTokenizer() Tokenizer {
	t, err := NewMorphTokenizer()
	if err != nil {
		return NewFallbackTokenizer()
	}
	return t
}
