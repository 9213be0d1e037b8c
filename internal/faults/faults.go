package faults

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind is the error taxonomy every operation reports through. Per-row and
// per-file kinds are isolated and aggregated into the enclosing batch's
// summary rather than aborting it.
type Kind string

const (
	Validation       Kind = "validation_error"
	Parse            Kind = "parse_error"
	Classification   Kind = "classification_error"
	UnitUnrecognized Kind = "unit_unrecognized"
	Query            Kind = "query_error"
	Timeout          Kind = "timeout_error"
	NotFound         Kind = "not_found_error"
)

// Error carries a taxonomy kind alongside a wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a taxonomy error with a fresh message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: eris.New(msg)}
}

// Newf creates a taxonomy error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: eris.Errorf(format, args...)}
}

// Wrap attaches a taxonomy kind to an existing error. Returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: eris.Wrap(err, msg)}
}

// KindOf returns the taxonomy kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
