package abstract

import (
	"github.com/datazip-inc/filetap/types"
)

// emitHandler turns pipeline callbacks into protocol messages.
type emitHandler struct {
	emit   Emitter
	stream string
}

func (h *emitHandler) OnSchema(stream string, schema *types.Schema) error {
	h.stream = stream
	return h.emit(&types.Message{Type: types.SchemaMessage, Stream: stream, Schema: schema})
}

func (h *emitHandler) OnRecord(record types.Record) error {
	return h.emit(&types.Message{Type: types.RecordMessage, Stream: h.stream, Record: &record})
}
