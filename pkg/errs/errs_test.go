package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
		tolerable bool
	}{
		{Configuration, false, false},
		{NotImplemented, false, false},
		{NotFound, false, false},
		{Access, false, false},
		{Transient, true, false},
		{Decompression, false, true},
		{AmbiguousArchive, false, true},
		{RowShape, false, true},
		{MalformedRecord, false, true},
		{UnsupportedDelimiter, false, false},
		{Unknown, false, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.retryable, tc.kind.Retryable())
			assert.Equal(t, tc.tolerable, tc.kind.Tolerable())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{"kind only", &Error{Kind: Access}, "access"},
		{"message", New(Configuration, "%q is not valid", "x"), `configuration: "x" is not valid`},
		{"file without line", New(Decompression, "not gzip").WithFile("a.gz", 0), "decompression [a.gz]: not gzip"},
		{"file and line", AtLine(RowShape, "a.csv", 3, "expected 2 fields, got 3"), "row_shape [a.csv:3]: expected 2 fields, got 3"},
		{"wrapped", Wrap(NotFound, errors.New("no such file"), "failed to open"), "not_found: failed to open: no such file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := AtLine(MalformedRecord, "a.jsonl", 2, "bad json")
	wrapped := fmt.Errorf("failed to read stream: %w", base)

	assert.Equal(t, MalformedRecord, KindOf(wrapped))
	assert.True(t, Is(wrapped, MalformedRecord))
	assert.False(t, Is(wrapped, RowShape))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))

	e, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "a.jsonl", e.File)
	assert.Equal(t, 2, e.Line)

	// errors.Is matches by kind regardless of file and line
	assert.ErrorIs(t, wrapped, New(MalformedRecord, ""))
	assert.NotErrorIs(t, wrapped, New(RowShape, ""))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Transient, cause, "failed to list")
	assert.ErrorIs(t, err, cause)
}

func TestWithFileCopies(t *testing.T) {
	base := New(UnsupportedDelimiter, "no delimiter for extension")
	annotated := base.WithFile("a.txt", 0)
	assert.Empty(t, base.File)
	assert.Equal(t, "a.txt", annotated.File)
	assert.Equal(t, base.Kind, annotated.Kind)
}
