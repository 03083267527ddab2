package types

import (
	"errors"
	"fmt"

	"github.com/slighter12/usd-mcp-go/usd"
)

const (
	SemanticKindNotFound          = "not_found"
	SemanticKindUnsupportedFormat = "unsupported_format"
	SemanticKindParseError        = "parse_error"
	SemanticKindPrimNotFound      = "prim_not_found"
	SemanticKindInvalidArgument   = "invalid_argument"
	SemanticKindInternalError     = "internal_error"
)

// SemanticError marks tool failures that should be surfaced as structured isError payloads.
type SemanticError struct {
	Kind    string
	Message string
	Data    map[string]any
}

func (e *SemanticError) Error() string {
	if e == nil {
		return "tool semantic error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("tool semantic error: %s", e.Kind)
	}
	return "tool semantic error"
}

func NewSemanticError(kind, message string, data map[string]any) *SemanticError {
	return &SemanticError{Kind: kind, Message: message, Data: data}
}

func NewInvalidArgumentError(message string, data map[string]any) *SemanticError {
	return NewSemanticError(SemanticKindInvalidArgument, message, data)
}

// FromStageError lifts a stage loading or lookup failure into a semantic
// error, preserving the classification so callers see not_found,
// parse_error and friends instead of an opaque internal failure.
func FromStageError(err error, data map[string]any) *SemanticError {
	if err == nil {
		return nil
	}
	if semanticErr, ok := AsSemanticError(err); ok {
		return semanticErr
	}
	return NewSemanticError(string(usd.KindOf(err)), err.Error(), data)
}

func AsSemanticError(err error) (*SemanticError, bool) {
	if err == nil {
		return nil, false
	}
	var semanticErr *SemanticError
	if errors.As(err, &semanticErr) {
		return semanticErr, true
	}
	return nil, false
}
