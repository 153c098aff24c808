package schema

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/compression"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/pkg/parser"
	"github.com/datazip-inc/filetap/pkg/storage"
	"github.com/datazip-inc/filetap/types"
)

func detectOpen(ctx context.Context, entry storage.FileEntry) (*compression.Stream, error) {
	raw, err := entry.Open(ctx)
	if err != nil {
		return nil, err
	}
	return compression.Resolve(entry.Path, compression.Detect, raw)
}

func listDir(t *testing.T, files map[string][]byte) []storage.FileEntry {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), content, 0o644))
	}
	src, err := storage.NewLocalSource(root)
	require.NoError(t, err)
	entries, err := storage.ListAll(context.Background(), src, "", nil)
	require.NoError(t, err)
	return entries
}

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newInferencer(t *testing.T, fileType constants.FileType) *Inferencer {
	t.Helper()
	p, err := parser.New(parser.Config{FileType: fileType, Delimiter: constants.DetectValue})
	require.NoError(t, err)
	inf, err := NewInferencer(p, First)
	require.NoError(t, err)
	return inf
}

func TestParseSamplingStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected SamplingStrategy
		kind     errs.Kind
	}{
		{"", First, ""},
		{"first", First, ""},
		{"all", "", errs.NotImplemented},
		{"some", "", errs.Configuration},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseSamplingStrategy(tc.input)
			if tc.kind != "" {
				assert.Equal(t, tc.kind, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNewInferencer(t *testing.T) {
	_, err := NewInferencer(nil, First)
	assert.True(t, errs.Is(err, errs.Configuration))

	_, err = NewInferencer(parser.NewAvroParser(), All)
	assert.True(t, errs.Is(err, errs.NotImplemented))

	inf, err := NewInferencer(parser.NewAvroParser(), "")
	require.NoError(t, err)
	assert.Equal(t, First, inf.Strategy())
}

func TestInferFirstQualifyingFile(t *testing.T) {
	entries := listDir(t, map[string][]byte{
		"a.jsonl": []byte("\n"),
		"b.jsonl": []byte(`{"x":1,"y":"s"}` + "\n"),
		"c.jsonl": []byte(`{"z":true}` + "\n"),
	})

	schema, err := newInferencer(t, constants.JSONL).Infer(context.Background(), entries, detectOpen)
	require.NoError(t, err)
	assert.True(t, schema.Frozen())
	assert.Equal(t, []string{"x", "y"}, schema.Fields())
	assert.Error(t, schema.UpsertField("z", types.Bool, true))
}

func TestInferThroughCompression(t *testing.T) {
	entries := listDir(t, map[string][]byte{
		"a.csv.gz": gzipped(t, "id,name\n1,Alice\n"),
	})

	schema, err := newInferencer(t, constants.Delimited).Infer(context.Background(), entries, detectOpen)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.Fields())
}

func TestInferNoEntries(t *testing.T) {
	schema, err := newInferencer(t, constants.Delimited).Infer(context.Background(), nil, detectOpen)
	require.NoError(t, err)
	assert.Equal(t, 0, schema.Len())
	assert.True(t, schema.Frozen())
}

func TestInferTolerableErrors(t *testing.T) {
	files := map[string][]byte{
		"a.jsonl": []byte("{broken\n"),
		"b.jsonl": []byte(`{"ok":1}` + "\n"),
	}

	t.Run("fails without a handler", func(t *testing.T) {
		_, err := newInferencer(t, constants.JSONL).Infer(context.Background(), listDir(t, files), detectOpen)
		assert.True(t, errs.Is(err, errs.MalformedRecord))
	})

	t.Run("handler moves past the file", func(t *testing.T) {
		var skipped []*errs.Error
		inf := newInferencer(t, constants.JSONL).WithErrorHandler(func(e *errs.Error) error {
			skipped = append(skipped, e)
			return nil
		})
		schema, err := inf.Infer(context.Background(), listDir(t, files), detectOpen)
		require.NoError(t, err)
		assert.Equal(t, []string{"ok"}, schema.Fields())
		require.Len(t, skipped, 1)
		assert.Equal(t, "a.jsonl", skipped[0].File)
	})

	t.Run("handler reaches later lines of the same file", func(t *testing.T) {
		entries := listDir(t, map[string][]byte{
			"a.jsonl": []byte("{broken\n{\"first\":1}\n"),
			"b.jsonl": []byte(`{"ok":1}` + "\n"),
		})
		inf := newInferencer(t, constants.JSONL).WithErrorHandler(func(*errs.Error) error { return nil })
		schema, err := inf.Infer(context.Background(), entries, detectOpen)
		require.NoError(t, err)
		assert.Equal(t, []string{"first"}, schema.Fields())
	})
}

func TestInferStopsOnFatalErrors(t *testing.T) {
	entries := listDir(t, map[string][]byte{
		"a.txt": []byte("a,b\n"),
		"b.csv": []byte("a,b\n"),
	})
	inf := newInferencer(t, constants.Delimited).WithErrorHandler(func(*errs.Error) error { return nil })
	_, err := inf.Infer(context.Background(), entries, detectOpen)
	assert.True(t, errs.Is(err, errs.UnsupportedDelimiter))
}

func TestInferCancelled(t *testing.T) {
	entries := listDir(t, map[string][]byte{"a.csv": []byte("a\n")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newInferencer(t, constants.Delimited).Infer(ctx, entries, detectOpen)
	assert.ErrorIs(t, err, context.Canceled)
}
