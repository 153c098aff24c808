package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
	"github.com/datazip-inc/filetap/utils/typeutils"
)

// JSONLParser implements the Parser interface for JSON lines files, one
// object per line. The schema comes from the first record.
type JSONLParser struct {
	coercion CoercionStrategy
}

func NewJSONLParser(cfg Config) (*JSONLParser, error) {
	coercion := cfg.Coercion
	if coercion == "" {
		coercion = CoerceAny
	}
	switch coercion {
	case CoerceAny, CoerceString:
	case CoerceBlob:
		return nil, errs.New(errs.NotImplemented, "'blob' jsonl_type_coercion_strategy is not supported yet")
	default:
		return nil, errs.New(errs.Configuration, "%q is not a valid 'jsonl_type_coercion_strategy'", coercion)
	}
	return &JSONLParser{coercion: coercion}, nil
}

// lineReader yields non-blank lines with their 1-based line numbers.
type lineReader struct {
	r    *bufio.Reader
	line int
}

func (l *lineReader) next() ([]byte, int, error) {
	for {
		raw, err := l.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			return nil, l.line, err
		}
		l.line++
		if err != nil && err != io.EOF {
			return nil, l.line, err
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
			return trimmed, l.line, nil
		}
		if err == io.EOF {
			return nil, l.line, io.EOF
		}
	}
}

// decodeObject decodes one JSON object keeping its top-level key order.
// Numbers are left as json.Number.
func decodeObject(line []byte) ([]string, []any, error) {
	if !json.Valid(line) {
		return nil, nil, fmt.Errorf("invalid JSON")
	}
	if line[0] != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}

	var keys []string
	var values []any
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		// last duplicate wins, as in encoding/json
		if idx, dup := seen[key]; dup {
			values[idx] = value
			continue
		}
		seen[key] = len(keys)
		keys = append(keys, key)
		values = append(values, value)
	}
	return keys, values, nil
}

func (p *JSONLParser) decode(in Input, line []byte, lineNo int) ([]string, []any, *errs.Error) {
	keys, values, err := decodeObject(line)
	if err != nil {
		return nil, nil, errs.AtLine(errs.MalformedRecord, in.File, lineNo, "%s", err)
	}
	return keys, values, nil
}

// InferSchema reads the first record only; its keys and value types are the
// schema. A malformed line before it goes through in.OnError, and when that
// tolerates it the next line is tried.
func (p *JSONLParser) InferSchema(ctx context.Context, in Input) (*types.Schema, error) {
	logger.Debugf("Inferring JSONL schema from the first record of %s", in.File)

	onError := handlerOrDefault(in.OnError)
	lines := &lineReader{r: bufio.NewReader(in.Reader)}
	var keys []string
	var values []any
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, lineNo, err := lines.next()
		if err == io.EOF {
			return nil, ErrNoSample
		}
		if err != nil {
			return nil, err
		}

		var decErr *errs.Error
		keys, values, decErr = p.decode(in, line, lineNo)
		if decErr == nil {
			break
		}
		if herr := onError(decErr); herr != nil {
			return nil, herr
		}
	}

	schema := types.NewSchema()
	switch p.coercion {
	case CoerceString:
		for _, key := range keys {
			if err := schema.UpsertField(key, types.String, true); err != nil {
				return nil, err
			}
		}
	default:
		if err := typeutils.Resolve(schema, keys, values); err != nil {
			return nil, err
		}
	}

	logger.Infof("Inferred schema with %d fields from the first record of %s", len(keys), in.File)
	return schema, nil
}

// StreamRecords reads and streams JSONL records with context support. Later
// records are not validated against the schema: missing keys become null and
// unknown keys are dropped.
func (p *JSONLParser) StreamRecords(ctx context.Context, in Input, schema *types.Schema, callback RecordCallback, onError ErrorHandler) error {
	onError = handlerOrDefault(onError)
	fields := schema.Fields()
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f] = i
	}

	lines := &lineReader{r: bufio.NewReader(in.Reader)}
	dropped := map[string]bool{}
	recordCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, lineNo, err := lines.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		keys, raw, decErr := p.decode(in, line, lineNo)
		if decErr != nil {
			if herr := onError(decErr); herr != nil {
				return herr
			}
			continue
		}

		values := make([]any, len(fields))
		var convErr *errs.Error
		for i, key := range keys {
			idx, found := index[key]
			if !found {
				if !dropped[key] {
					dropped[key] = true
					logger.Warnf("Key %q in %s:%d is not in the schema and is dropped", key, in.File, lineNo)
				}
				continue
			}
			value := raw[i]
			switch p.coercion {
			case CoerceString:
				value, err = typeutils.Stringify(value)
				if err != nil {
					convErr = errs.AtLine(errs.MalformedRecord, in.File, lineNo, "field %s: %s", key, err)
				}
			default:
				value = typeutils.NormalizeNumbers(value)
			}
			if convErr != nil {
				break
			}
			values[idx] = value
		}
		if convErr != nil {
			if herr := onError(convErr); herr != nil {
				return herr
			}
			continue
		}

		if err := callback(ctx, types.NewRecord(in.File, lineNo, fields, values)); err != nil {
			return err
		}
		recordCount++
	}

	logger.Infof("Processed %d records from %s", recordCount, in.File)
	return nil
}
