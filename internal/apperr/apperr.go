// Package apperr defines the error taxonomy shared by the resolver engine,
// the storage adapter and the GraphQL layer.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test an error's kind.
var (
	ErrSchema             = errors.New("schema error")
	ErrValidation         = errors.New("validation error")
	ErrType               = errors.New("type error")
	ErrUnknownField       = errors.New("unknown field")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrCardinality        = errors.New("cardinality error")
	ErrContext            = errors.New("context error")
	ErrAuthorization      = errors.New("authorization error")
	ErrFeatureUnavailable = errors.New("feature unavailable")
	ErrStorage            = errors.New("storage error")
)

// Error is an error of a known kind with a user facing message.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Errorf builds an error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around cause. A nil cause yields nil.
func Wrap(kind error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

var codes = []struct {
	kind error
	code string
}{
	{ErrSchema, "SCHEMA"},
	{ErrValidation, "VALIDATION"},
	{ErrType, "TYPE"},
	{ErrUnknownField, "UNKNOWN_FIELD"},
	{ErrConflict, "CONFLICT"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrCardinality, "CARDINALITY"},
	{ErrContext, "CONTEXT"},
	{ErrAuthorization, "UNAUTHORIZED"},
	{ErrFeatureUnavailable, "FEATURE_UNAVAILABLE"},
	{ErrStorage, "STORAGE"},
}

// Code returns a stable machine readable code for err, or "INTERNAL".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "INTERNAL"
}
