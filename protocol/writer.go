package protocol

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/datazip-inc/filetap/types"
)

// MessageWriter writes one JSON message per line. It is safe for concurrent use.
type MessageWriter struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

func NewMessageWriter(w io.Writer) *MessageWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &MessageWriter{buf: buf, enc: enc}
}

// Emit buffers message; Flush pushes buffered lines to the underlying writer.
func (m *MessageWriter) Emit(message *types.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enc.Encode(message); err != nil {
		return fmt.Errorf("failed to write %s message: %w", message.Type, err)
	}
	return nil
}

func (m *MessageWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Flush()
}

// EmitNow writes message and flushes it.
func (m *MessageWriter) EmitNow(message *types.Message) error {
	if err := m.Emit(message); err != nil {
		return err
	}
	return m.Flush()
}
