package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

func TestMorphTokenizerSplitsMixedScript(t *testing.T) {
	tok, err := NewMorphTokenizer()
	require.NoError(t, err)

	tokens := tok.Tokenize("chromadb確認")
	require.NotEmpty(t, tokens)

	var sawLatin, sawCJK bool
	for _, tk := range tokens {
		for _, r := range tk {
			if r == '確' || r == '認' {
				sawCJK = true
			}
			if r >= 'a' && r <= 'z' {
				sawLatin = true
			}
		}
	}
	assert.True(t, sawLatin, "expected a Latin token among %v", tokens)
	assert.True(t, sawCJK, "expected a CJK token among %v", tokens)
}

func TestMorphTokenizerEmptyTextReturnsNil(t *testing.T) {
	tok, err := NewMorphTokenizer()
	require.NoError(t, err)
	assert.Empty(t, tok.Tokenize("   "))
}

func TestNewTokenizerReturnsMorphTokenizerByDefault(t *testing.T) {
	tok := NewTokenizer()
	_, ok := tok.(*MorphTokenizer)
	assert.True(t, ok, "NewTokenizer should default to the morphological tokenizer when its dictionary loads")
}

func TestTokenizerUnavailableErrorKind(t *testing.T) {
	// NewMorphTokenizer only fails this way if gse's bundled dictionary
	// cannot load, which the test environment cannot induce; this pins
	// the Kind that path must surface if it ever does.
	err := semcheerrors.TokenizerUnavailable("failed to load morphological tokenizer dictionary", assert.AnError)
	assert.Equal(t, semcheerrors.KindTokenizerUnavailable, semcheerrors.GetKind(err))
	assert.False(t, semcheerrors.IsFatal(err))
}

func TestFallbackTokenizerLowercasesAndSplitsOnWhitespace(t *testing.T) {
	tok := NewFallbackTokenizer()
	tokens := tok.Tokenize("Hybrid-Search, combines DENSE+sparse!")
	assert.Equal(t, []string{"hybrid-search", "combines", "dense+sparse"}, tokens)
}
