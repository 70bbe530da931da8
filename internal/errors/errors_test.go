package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsSeverityFromKind(t *testing.T) {
	corrupt := New(KindCorruptIndex, "bad gob header", nil)
	assert.Equal(t, SeverityFatal, corrupt.Severity)

	invalid := New(KindValidation, "query is empty", nil)
	assert.Equal(t, SeverityError, invalid.Severity)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindBackendFailure, cause)
	require.NotNil(t, wrapped)
	assert.Same(t, cause, wrapped.Cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindUnexpected, nil))
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := Validation("missing field: query", nil)
	b := Validation("missing field: collection", nil)
	assert.True(t, errors.Is(a, b))

	c := IndexNotBuilt("bm25 index empty", nil)
	assert.False(t, errors.Is(a, c))
}

func TestWithDetail(t *testing.T) {
	err := DimensionMismatch("expected 768, got 384", nil).WithDetail("collection", "docs")
	assert.Equal(t, "docs", err.Details["collection"])
}

func TestGetKind(t *testing.T) {
	assert.Equal(t, KindCorruptIndex, GetKind(CorruptIndex("truncated file", nil)))
	assert.Equal(t, KindUnexpected, GetKind(errors.New("plain error")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(CorruptIndex("bad", nil)))
	assert.False(t, IsFatal(Validation("bad input", nil)))
	assert.False(t, IsFatal(nil))
}
