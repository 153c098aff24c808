package protocol

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datazip-inc/filetap/types"
)

func TestMessageWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewMessageWriter(&out)

	schema := types.NewSchema()
	require.NoError(t, schema.UpsertField("id", types.String, true))
	require.NoError(t, schema.UpsertField("name", types.String, true))
	record := types.NewRecord("a.csv", 2, []string{"id", "name"}, []any{"1", "Alice"})

	require.NoError(t, w.Emit(&types.Message{Type: types.SchemaMessage, Stream: "people", Schema: schema.Freeze()}))
	require.NoError(t, w.Emit(&types.Message{Type: types.RecordMessage, Stream: "people", Record: &record}))
	assert.Empty(t, out.String(), "nothing is written before flush")
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"type":"SCHEMA","stream":"people","schema":{"type":"object","properties":{"id":{"type":["string","null"]},"name":{"type":["string","null"]}}}}`, lines[0])
	assert.Equal(t, `{"type":"RECORD","stream":"people","record":{"id":"1","name":"Alice"}}`, lines[1])
}

func TestMessageWriterConnectionStatus(t *testing.T) {
	var out bytes.Buffer
	w := NewMessageWriter(&out)
	require.NoError(t, w.EmitNow(&types.Message{
		Type:             types.ConnectionStatusMessage,
		ConnectionStatus: &types.StatusRow{Status: types.ConnectionFailed, Message: "denied"},
	}))
	assert.JSONEq(t, `{"type":"CONNECTION_STATUS","connectionStatus":{"status":"FAILED","message":"denied"}}`, out.String())
}

func TestMessageWriterConcurrent(t *testing.T) {
	var out bytes.Buffer
	w := NewMessageWriter(&out)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				record := types.NewRecord("a.csv", j, []string{"n"}, []any{int64(j)})
				assert.NoError(t, w.Emit(&types.Message{Type: types.RecordMessage, Stream: "s", Record: &record}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, `{"type":"RECORD"`), line)
	}
}
