package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. The orchestrator retries transport
// and parse failures; validation and not-found are caller mistakes and go
// straight back without a retry; record errors never escape an adapter run.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindParse      ErrorKind = "parse"
	KindRecord     ErrorKind = "record"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
)

// Error is the single error carrier for the taxonomy above.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func TransportError(err error, format string, args ...any) *Error {
	return newError(KindTransport, err, format, args...)
}

func ParseError(err error, format string, args ...any) *Error {
	return newError(KindParse, err, format, args...)
}

func RecordError(err error, format string, args ...any) *Error {
	return newError(KindRecord, err, format, args...)
}

func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func NotFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// KindOf returns the taxonomy kind of err, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the orchestrator should schedule another
// attempt. Unclassified errors are treated as transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindRecord:
		return false
	}
	return true
}
