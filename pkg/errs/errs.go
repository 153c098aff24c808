// Package errs carries the error kinds surfaced by the ingestion pipeline.
// Every failure that reaches the caller can be classified with KindOf, and
// per-unit failures carry the file identifier and line number they refer to.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	Unknown              Kind = "unknown"
	Configuration        Kind = "configuration"
	NotImplemented       Kind = "not_implemented"
	NotFound             Kind = "not_found"
	Access               Kind = "access"
	Transient            Kind = "transient"
	Decompression        Kind = "decompression"
	AmbiguousArchive     Kind = "ambiguous_archive"
	RowShape             Kind = "row_shape"
	MalformedRecord      Kind = "malformed_record"
	UnsupportedDelimiter Kind = "unsupported_delimiter"
)

// Retryable reports whether the caller may retry the failed operation with backoff.
func (k Kind) Retryable() bool {
	return k == Transient
}

// Tolerable reports whether the failure is isolated to one file or record and
// may be skipped under the skip policy.
func (k Kind) Tolerable() bool {
	switch k {
	case Decompression, AmbiguousArchive, RowShape, MalformedRecord:
		return true
	default:
		return false
	}
}

// Error is the single error type of the pipeline.
type Error struct {
	Kind Kind
	File string
	Line int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.File != "" {
		sb.WriteString(" [")
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
		}
		sb.WriteString("]")
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, errs.New(errs.RowShape, ""))
// works regardless of file and line.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// WithFile returns a copy annotated with the file identifier and line.
func (e *Error) WithFile(file string, line int) *Error {
	c := *e
	c.File = file
	c.Line = line
	return &c
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AtLine builds a per-record error.
func AtLine(kind Kind, file string, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As returns the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
