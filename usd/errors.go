package usd

import (
	"errors"
	"fmt"
)

// ErrorKind classifies stage loading and query failures so callers can map
// them onto structured tool error envelopes.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindParseError        ErrorKind = "parse_error"
	KindPrimNotFound      ErrorKind = "prim_not_found"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindInternal          ErrorKind = "internal_error"
)

// Error is a classified USD layer error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a classified error, or KindInternal for any
// other non-nil error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind checks whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
