package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

func TestErrorTypeClassifiedError(t *testing.T) {
	err := semcheerrors.Validation("bad input", nil)
	assert.Equal(t, "ValidationError", errorType(err))
}

func TestErrorTypeUnclassifiedErrorIncludesRuntimeType(t *testing.T) {
	err := errors.New("plain error")
	got := errorType(err)
	assert.Contains(t, got, "UnexpectedError")
	assert.Contains(t, got, "*errors.errorString")
}

func TestRecoverToolSetsErrorOnPanic(t *testing.T) {
	out := PutDocumentOutput{Status: "success"}

	func() {
		defer recoverTool(&out, func(o *PutDocumentOutput, message, errType string) {
			o.Status, o.Message, o.ErrorType = "error", message, errType
		})
		panic("boom")
	}()

	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Message, "boom")
	assert.Contains(t, out.ErrorType, "UnexpectedError")
	assert.Contains(t, out.ErrorType, "string")
}

func TestRecoverToolNoPanicLeavesOutputUntouched(t *testing.T) {
	out := PutDocumentOutput{Status: "success"}

	func() {
		defer recoverTool(&out, func(o *PutDocumentOutput, message, errType string) {
			o.Status, o.Message, o.ErrorType = "error", message, errType
		})
	}()

	assert.Equal(t, "success", out.Status)
}
