// Package storage abstracts a filesystem over local disk or an object store.
// A Source enumerates entries under a prefix that match a pattern and opens a
// raw byte stream for one entry. Decorators add caching and retries.
package storage

import (
	"context"
	"io"
	"regexp"
	"time"
)

// FileEntry identifies one matchable file. It is immutable once listed.
type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time

	source Source
}

// Open opens the entry through the source that listed it.
func (e FileEntry) Open(ctx context.Context) (io.ReadCloser, error) {
	return e.source.Open(ctx, e)
}

// Source returns the backend that listed the entry.
func (e FileEntry) Source() Source {
	return e.source
}

// Source is a storage backend.
type Source interface {
	// Name is the backend identity, e.g. "file" or "s3://bucket".
	Name() string
	// List calls fn for every file under prefix whose path matches pattern,
	// in lexicographic order. A nil pattern matches everything. Returning an
	// error from fn stops the listing with that error.
	List(ctx context.Context, prefix string, pattern *regexp.Regexp, fn func(FileEntry) error) error
	// Open returns the raw bytes of the entry. The caller must close it.
	Open(ctx context.Context, entry FileEntry) (io.ReadCloser, error)
	Close() error
}

// ListAll collects the listing of src into a slice.
func ListAll(ctx context.Context, src Source, prefix string, pattern *regexp.Regexp) ([]FileEntry, error) {
	var entries []FileEntry
	err := src.List(ctx, prefix, pattern, func(e FileEntry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Bind re-homes e onto src so that e.Open goes through src. Decorators call
// it on the entries listed by the source they wrap.
func Bind(e FileEntry, src Source) FileEntry {
	e.source = src
	return e
}

func matches(pattern *regexp.Regexp, path string) bool {
	return pattern == nil || pattern.MatchString(path)
}
