package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/pkg/pipeline"
	"github.com/datazip-inc/filetap/pkg/storage"
	"github.com/datazip-inc/filetap/types"
)

type collector struct {
	stream  string
	schema  *types.Schema
	records []map[string]any
}

func (c *collector) OnSchema(stream string, schema *types.Schema) error {
	c.stream = stream
	c.schema = schema
	return nil
}

func (c *collector) OnRecord(record types.Record) error {
	c.records = append(c.records, record.Map())
	return nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func setupDriver(t *testing.T, config Config) *File {
	t.Helper()
	driver := &File{}
	ref, ok := driver.GetConfigRef().(*Config)
	require.True(t, ok)
	*ref = config
	if ref.CacheDir == "" {
		ref.CacheDir = t.TempDir()
	}
	require.NoError(t, driver.Setup(context.Background()))
	t.Cleanup(driver.CloseConnection)
	return driver
}

func TestFileSpec(t *testing.T) {
	driver := &File{}
	assert.Equal(t, "file", driver.Type())

	raw, ok := driver.Spec().(json.RawMessage)
	require.True(t, ok)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(raw, &spec))
	properties, ok := spec["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"protocol", "filepath", "file_type", "compression", "delimiter", "caching_strategy", "on_error"} {
		assert.Contains(t, properties, key)
	}
}

func TestFileSetupErrors(t *testing.T) {
	t.Run("config not loaded", func(t *testing.T) {
		assert.Error(t, (&File{}).Setup(context.Background()))
	})

	t.Run("invalid config", func(t *testing.T) {
		driver := &File{}
		ref := driver.GetConfigRef().(*Config)
		ref.Protocol = constants.ProtocolFile
		ref.Filepath = t.TempDir()
		ref.FileType = "csv"
		err := driver.Setup(context.Background())
		assert.True(t, errs.Is(err, errs.Configuration))
		assert.Contains(t, err.Error(), "Did you mean 'delimited'?")
	})

	t.Run("missing location", func(t *testing.T) {
		driver := &File{}
		ref := driver.GetConfigRef().(*Config)
		ref.Protocol = constants.ProtocolFile
		ref.Filepath = filepath.Join(t.TempDir(), "missing")
		err := driver.Setup(context.Background())
		assert.True(t, errs.Is(err, errs.NotFound))
	})

	t.Run("calls before setup", func(t *testing.T) {
		driver := &File{}
		_, err := driver.Discover(context.Background())
		assert.Error(t, err)
		_, err = driver.Read(context.Background(), &collector{})
		assert.Error(t, err)
		assert.Error(t, driver.Check(context.Background()))
		driver.CloseConnection()
	})
}

func TestFileCheck(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.csv": "id\n1\n"})

	driver := setupDriver(t, Config{Protocol: constants.ProtocolFile, Filepath: root})
	assert.NoError(t, driver.Check(context.Background()))

	empty := setupDriver(t, Config{Protocol: constants.ProtocolFile, Filepath: root, FileRegex: `\.jsonl$`})
	assert.NoError(t, empty.Check(context.Background()))
}

func TestFileDiscoverAndRead(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.csv":        "id,name\n1,Alice\n2,Bob\n",
		"nested/b.csv": "id,name\n3,Carol\n",
		"notes.md":     "ignored",
	})

	for _, strategy := range []constants.CachingStrategy{constants.CacheNone, constants.CacheOnce, constants.CachePersistent} {
		t.Run(string(strategy), func(t *testing.T) {
			driver := setupDriver(t, Config{
				StreamName:      "people",
				Protocol:        constants.ProtocolFile,
				Filepath:        root,
				FileRegex:       `\.csv$`,
				CachingStrategy: strategy,
			})
			assert.Equal(t, "people", driver.StreamName())

			schema, err := driver.Discover(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name"}, schema.Fields())

			c := &collector{}
			summary, err := driver.Read(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, "people", c.stream)
			assert.Equal(t, 2, summary.Files)
			assert.Equal(t, []map[string]any{
				{"id": "1", "name": "Alice"},
				{"id": "2", "name": "Bob"},
				{"id": "3", "name": "Carol"},
			}, c.records)
		})
	}
}

func TestFileLocalSourceIsNotCached(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.csv": "id\n1\n"})

	for _, strategy := range []constants.CachingStrategy{"", constants.CacheOnce, constants.CachePersistent} {
		t.Run("strategy "+string(strategy), func(t *testing.T) {
			cacheDir := t.TempDir()
			driver := setupDriver(t, Config{
				Protocol:        constants.ProtocolFile,
				Filepath:        root,
				CachingStrategy: strategy,
				CacheDir:        cacheDir,
			})

			retrying, ok := driver.source.(*storage.Retrying)
			require.True(t, ok)
			assert.IsType(t, &storage.LocalSource{}, retrying.Unwrap())

			c := &collector{}
			_, err := driver.Read(context.Background(), c)
			require.NoError(t, err)
			assert.Len(t, c.records, 1)

			entries, err := os.ReadDir(cacheDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestFileReadSkipPolicy(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.jsonl": "{\"v\":1}\n{oops\n{\"v\":2}\n",
	})

	t.Run("fail", func(t *testing.T) {
		driver := setupDriver(t, Config{Protocol: constants.ProtocolFile, Filepath: root, FileType: "jsonl"})
		_, err := driver.Read(context.Background(), &collector{})
		assert.True(t, errs.Is(err, errs.MalformedRecord))
	})

	t.Run("skip", func(t *testing.T) {
		driver := setupDriver(t, Config{Protocol: constants.ProtocolFile, Filepath: root, FileType: "jsonl", OnError: constants.OnErrorSkip})
		c := &collector{}
		summary, err := driver.Read(context.Background(), c)
		require.NoError(t, err)
		assert.Len(t, c.records, 2)
		assert.Equal(t, 1, summary.SkippedCount())
	})
}

func TestFileReadStop(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.csv": "id\n1\n2\n3\n"})
	driver := setupDriver(t, Config{Protocol: constants.ProtocolFile, Filepath: root})

	handler := &stopAfterFirst{}
	summary, err := driver.Read(context.Background(), handler)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Records)
}

type stopAfterFirst struct{ collector }

func (s *stopAfterFirst) OnRecord(types.Record) error {
	return pipeline.ErrStop
}
