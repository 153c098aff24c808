package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/hashstructure"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/utils"
	"github.com/datazip-inc/filetap/utils/logger"
)

// Cached serves previously fetched bytes for entries whose identity, size and
// modification time are unchanged.
type Cached struct {
	src      Source
	strategy constants.CachingStrategy
	dir      string
}

// cacheIdentity is hashed into the cache key; any change to it makes the old
// cache entry unreachable.
type cacheIdentity struct {
	Backend string
	Path    string
	Size    int64
	ModTime int64
}

// NewCached wraps src with the caching strategy. With CacheNone src is returned
// unchanged. baseDir defaults to os.TempDir().
func NewCached(src Source, strategy constants.CachingStrategy, baseDir string) (Source, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	var dir string
	switch strategy {
	case constants.CacheNone, "":
		return src, nil
	case constants.CacheOnce:
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache base dir: %s", err)
		}
		d, err := os.MkdirTemp(baseDir, constants.OnceCacheDirPrefix+utils.ULID()+"-")
		if err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %s", err)
		}
		dir = d
	case constants.CachePersistent:
		dir = filepath.Join(baseDir, constants.PersistentCacheDirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %s", err)
		}
	default:
		return nil, errs.New(errs.Configuration, "unsupported caching strategy %q", strategy)
	}

	logger.Debugf("Caching fetched files (%s) under %s", strategy, dir)
	return &Cached{src: src, strategy: strategy, dir: dir}, nil
}

func (c *Cached) Name() string {
	return c.src.Name()
}

// Dir is the directory holding cache entries.
func (c *Cached) Dir() string {
	return c.dir
}

func (c *Cached) List(ctx context.Context, prefix string, pattern *regexp.Regexp, fn func(FileEntry) error) error {
	return c.src.List(ctx, prefix, pattern, func(e FileEntry) error {
		return fn(Bind(e, c))
	})
}

// Open serves the cached copy when present, otherwise materializes the whole
// object into the cache and serves that. A cache file is written under a temp
// name and renamed into place, so concurrent readers see it complete or not at all.
func (c *Cached) Open(ctx context.Context, entry FileEntry) (io.ReadCloser, error) {
	key, err := c.key(entry)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(c.dir, key)

	f, err := os.Open(target)
	if err == nil {
		logger.Debugf("Cache hit for %s", entry.Path)
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to open cache entry %s: %s", target, err)
	}

	logger.Debugf("Cache miss for %s, fetching", entry.Path)
	if err := c.fill(ctx, entry, key, target); err != nil {
		return nil, err
	}
	f, err = os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache entry %s: %s", target, err)
	}
	return f, nil
}

func (c *Cached) fill(ctx context.Context, entry FileEntry, key, target string) error {
	raw, err := c.src.Open(ctx, entry)
	if err != nil {
		return err
	}
	defer raw.Close()

	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache temp file: %s", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, raw); err != nil {
		_ = tmp.Close()
		return errs.Wrap(errs.Transient, err, "failed to fetch file into cache").WithFile(entry.Path, 0)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync cache file: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %s", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to commit cache file: %s", err)
	}
	return nil
}

func (c *Cached) key(entry FileEntry) (string, error) {
	hash, err := hashstructure.Hash(cacheIdentity{
		Backend: c.src.Name(),
		Path:    entry.Path,
		Size:    entry.Size,
		ModTime: entry.ModTime.UnixNano(),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash cache key: %s", err)
	}
	return fmt.Sprintf("%016x", hash), nil
}

// Close releases the wrapped source; the once strategy also drops its directory.
func (c *Cached) Close() error {
	var err error
	if c.strategy == constants.CacheOnce {
		err = os.RemoveAll(c.dir)
	}
	return errors.Join(err, c.src.Close())
}
