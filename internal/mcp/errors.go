// Package mcp implements the Model Context Protocol (MCP) tool surface
// for semche: put_document, search, delete_document, and
// get_documents_by_prefix.
package mcp

import (
	"fmt"

	semcheerrors "github.com/paterapatera/semche/internal/errors"
)

// Standard JSON-RPC error codes, used only for transport-level failures
// (an unknown tool name) rather than business errors, which are
// reported inside each tool's own {status:"error", ...} output record.
const (
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a transport-level protocol error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewMethodNotFoundError creates an error for unknown tool names.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// errorType classifies err into the taxonomy's error_type string for a
// tool's error output record. A *SemcheError reports its own Kind; any
// other error is unclassified and is tagged with the Go runtime type
// name of the value itself, via %T, so a caller can still tell distinct
// unclassified failures apart.
func errorType(err error) string {
	kind := semcheerrors.GetKind(err)
	if _, ok := err.(*semcheerrors.SemcheError); !ok {
		return fmt.Sprintf("%s(%T)", kind, err)
	}
	return string(kind)
}

// recoverTool is deferred first (so it runs last, outermost) in every
// tool handler. It recovers any panic that escapes business logic,
// tagging it UnexpectedError with the runtime type of the recovered
// value via %T, and hands the classified error to setError to populate
// the handler's own output record.
func recoverTool[O any](out *O, setError func(o *O, message, errType string)) {
	r := recover()
	if r == nil {
		return
	}
	message := fmt.Sprintf("panic: %v", r)
	errType := fmt.Sprintf("%s(%T)", semcheerrors.KindUnexpected, r)
	setError(out, message, errType)
}
