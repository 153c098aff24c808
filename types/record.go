package types

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Record is an ordered mapping from schema field name to value. The source file
// and line are provenance for diagnostics and are not serialized.
type Record struct {
	File   string
	Line   int
	fields []string
	values []any
}

// NewRecord builds a record over fields; values must be positionally aligned.
func NewRecord(file string, line int, fields []string, values []any) Record {
	return Record{File: file, Line: line, fields: fields, values: values}
}

func (r Record) Len() int {
	return len(r.fields)
}

func (r Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r Record) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

func (r Record) Get(field string) (any, bool) {
	for i, f := range r.fields {
		if f == field {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		out[f] = r.values[i]
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %s", f, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
