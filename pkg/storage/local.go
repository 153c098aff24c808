package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/utils/logger"
)

// LocalSource walks a directory tree. Entry paths are slash-separated and
// relative to the root.
type LocalSource struct {
	root string
	// set when the configured location is a single file
	single string
}

// NewLocalSource returns a source rooted at location, which may be a directory
// or a single file.
func NewLocalSource(location string) (*LocalSource, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, classifyLocalError(err, location)
	}
	if info.IsDir() {
		return &LocalSource{root: location}, nil
	}
	return &LocalSource{root: filepath.Dir(location), single: filepath.Base(location)}, nil
}

func (l *LocalSource) Name() string {
	return "file"
}

func (l *LocalSource) List(ctx context.Context, prefix string, pattern *regexp.Regexp, fn func(FileEntry) error) error {
	if l.single != "" {
		return l.listSingle(pattern, fn)
	}

	start := filepath.Join(l.root, filepath.FromSlash(prefix))
	// WalkDir visits entries in lexical order
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return classifyLocalError(walkErr, p)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matches(pattern, rel) {
			logger.Debugf("Skipping file %s (does not match pattern)", rel)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return classifyLocalError(err, rel)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return fn(FileEntry{Path: rel, Size: info.Size(), ModTime: info.ModTime(), source: l})
	})
	return err
}

func (l *LocalSource) listSingle(pattern *regexp.Regexp, fn func(FileEntry) error) error {
	if !matches(pattern, l.single) {
		return nil
	}
	info, err := os.Stat(filepath.Join(l.root, l.single))
	if err != nil {
		return classifyLocalError(err, l.single)
	}
	return fn(FileEntry{Path: l.single, Size: info.Size(), ModTime: info.ModTime(), source: l})
}

func (l *LocalSource) Open(_ context.Context, entry FileEntry) (io.ReadCloser, error) {
	if cleaned := path.Clean(entry.Path); cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return nil, errs.New(errs.Access, "path %s escapes the source root", entry.Path)
	}
	f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(entry.Path)))
	if err != nil {
		return nil, classifyLocalError(err, entry.Path)
	}
	return f, nil
}

func (l *LocalSource) Close() error {
	return nil
}

func classifyLocalError(err error, file string) error {
	var kind errs.Kind
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = errs.NotFound
	case errors.Is(err, fs.ErrPermission):
		kind = errs.Access
	default:
		kind = errs.Unknown
	}
	return errs.Wrap(kind, err, "failed to access file").WithFile(file, 0)
}
