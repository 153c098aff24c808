package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datazip-inc/filetap/pkg/errs"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func paths(entries []FileEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestLocalSourceList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.csv", "x")
	writeFile(t, root, "a.csv", "x")
	writeFile(t, root, "notes.txt", "x")
	writeFile(t, root, "nested/c.csv", "x")
	writeFile(t, root, "nested/deeper/d.tsv", "x")

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	tests := []struct {
		name     string
		prefix   string
		pattern  string
		expected []string
	}{
		{"everything in lexical order", "", "", []string{"a.csv", "b.csv", "nested/c.csv", "nested/deeper/d.tsv", "notes.txt"}},
		{"regex search semantics", "", `\.csv$`, []string{"a.csv", "b.csv", "nested/c.csv"}},
		{"pattern matches relative path", "", `^nested/`, []string{"nested/c.csv", "nested/deeper/d.tsv"}},
		{"prefix narrows the walk", "nested", "", []string{"nested/c.csv", "nested/deeper/d.tsv"}},
		{"no match is empty", "", `\.parquet$`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var pattern *regexp.Regexp
			if tc.pattern != "" {
				pattern = regexp.MustCompile(tc.pattern)
			}
			entries, err := ListAll(context.Background(), src, tc.prefix, pattern)
			require.NoError(t, err)
			if tc.expected == nil {
				assert.Empty(t, entries)
				return
			}
			assert.Equal(t, tc.expected, paths(entries))
		})
	}
}

func TestLocalSourceOpen(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/a.csv", "id,name\n1,Alice\n")

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	entries, err := ListAll(context.Background(), src, "", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(16), entries[0].Size)

	rc, err := entries[0].Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Alice\n", string(b))
}

func TestLocalSourceOpenVanished(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.csv", "x")
	src, err := NewLocalSource(root)
	require.NoError(t, err)

	entries, err := ListAll(context.Background(), src, "", nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "a.csv")))

	_, err = entries[0].Open(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestLocalSourceRejectsEscapingPath(t *testing.T) {
	src, err := NewLocalSource(t.TempDir())
	require.NoError(t, err)
	_, err = src.Open(context.Background(), FileEntry{Path: "../etc/passwd"})
	assert.True(t, errs.Is(err, errs.Access))
}

func TestLocalSourceSingleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.jsonl", `{"a":1}`)
	writeFile(t, root, "two.jsonl", `{"a":2}`)

	src, err := NewLocalSource(filepath.Join(root, "one.jsonl"))
	require.NoError(t, err)
	entries, err := ListAll(context.Background(), src, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one.jsonl"}, paths(entries))
}

func TestNewLocalSourceMissingRoot(t *testing.T) {
	_, err := NewLocalSource(filepath.Join(t.TempDir(), "absent"))
	assert.True(t, errs.Is(err, errs.NotFound))
}
