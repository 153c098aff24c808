package parser

import (
	"context"
	"io"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
	"github.com/datazip-inc/filetap/utils/typeutils"
)

// DelimitedParser implements the Parser interface for CSV/TSV-like files.
// The first row of every file is its header.
type DelimitedParser struct {
	delimiter     string
	quote         rune
	typeInference bool
}

func NewDelimitedParser(cfg Config) (*DelimitedParser, error) {
	quoteCharacter := cfg.QuoteCharacter
	if quoteCharacter == "" {
		quoteCharacter = constants.DefaultQuoteCharacter
	}
	quote, err := singleRune("quote_character", quoteCharacter)
	if err != nil {
		return nil, err
	}
	if cfg.Delimiter != "" && cfg.Delimiter != constants.DetectValue {
		delim, err := singleRune("delimiter", cfg.Delimiter)
		if err != nil {
			return nil, err
		}
		if delim == quote {
			return nil, errs.New(errs.Configuration, "'delimiter' and 'quote_character' must differ")
		}
	} else {
		// any delimiter detect can pick must differ from the quote
		for ext, delim := range extensionDelimiters {
			if delim == quote {
				return nil, errs.New(errs.Configuration,
					"'quote_character' %q is the detected delimiter for %s files, set 'delimiter' explicitly", quoteCharacter, ext)
			}
		}
	}

	return &DelimitedParser{
		delimiter:     cfg.Delimiter,
		quote:         quote,
		typeInference: cfg.TypeInference,
	}, nil
}

func (p *DelimitedParser) open(in Input) (*rowReader, error) {
	delim, err := ResolveDelimiter(p.delimiter, in.Name)
	if err != nil {
		if e, ok := errs.As(err); ok {
			return nil, e.WithFile(in.File, 0)
		}
		return nil, err
	}
	return newRowReader(in.Reader, delim, p.quote), nil
}

// next skips blank lines and wraps reader failures with the file and line.
func (p *DelimitedParser) next(in Input, rows *rowReader) ([]string, int, error) {
	for {
		row, line, err := rows.Read()
		if err == io.EOF {
			return nil, line, err
		}
		if err == errUnterminatedQuote {
			return nil, line, errs.AtLine(errs.MalformedRecord, in.File, line, "%s", err)
		}
		if err != nil {
			return nil, line, err
		}
		if len(row) > 0 {
			return row, line, nil
		}
	}
}

// InferSchema reads the header and, for typed inference, a bounded sample of rows
func (p *DelimitedParser) InferSchema(ctx context.Context, in Input) (*types.Schema, error) {
	logger.Debugf("Inferring delimited schema from %s", in.File)

	rows, err := p.open(in)
	if err != nil {
		return nil, err
	}
	headers, _, err := p.next(in, rows)
	if err == io.EOF {
		return nil, ErrNoSample
	}
	if err != nil {
		return nil, err
	}

	var sampleRows [][]string
	if p.typeInference {
		for len(sampleRows) < constants.DelimitedSampleRows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row, line, err := p.next(in, rows)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if len(row) != len(headers) {
				logger.Warnf("Ignoring sample row at %s:%d with %d fields, expected %d", in.File, line, len(row), len(headers))
				continue
			}
			sampleRows = append(sampleRows, row)
		}
	}

	schema := types.NewSchema()
	for i, header := range headers {
		dataType := types.String
		if p.typeInference {
			dataType = typeutils.InferColumnType(sampleRows, i)
		}
		if _, found := schema.GetProperty(header); found {
			logger.Warnf("Duplicate header %q in %s, keeping the first column", header, in.File)
			continue
		}
		if err := schema.UpsertField(header, dataType, true); err != nil {
			return nil, err
		}
	}

	logger.Infof("Inferred schema with %d columns from %s", len(headers), in.File)
	return schema, nil
}

// StreamRecords reads and streams delimited records with context support
func (p *DelimitedParser) StreamRecords(ctx context.Context, in Input, schema *types.Schema, callback RecordCallback, onError ErrorHandler) error {
	onError = handlerOrDefault(onError)

	rows, err := p.open(in)
	if err != nil {
		return err
	}
	headers, _, err := p.next(in, rows)
	if err == io.EOF {
		logger.Infof("File %s is empty", in.File)
		return nil
	}
	if err != nil {
		return err
	}

	fields := schema.Fields()
	projection := project(in.File, fields, headers)
	fieldTypes := make([]types.DataType, len(fields))
	for i, field := range fields {
		fieldTypes[i], _ = schema.GetType(field)
	}

	recordCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, line, err := p.next(in, rows)
		if err == io.EOF {
			break
		}
		if e, ok := errs.As(err); ok && e.Kind.Tolerable() {
			// the reader cannot resynchronize after a broken quote
			if herr := onError(e); herr != nil {
				return herr
			}
			break
		}
		if err != nil {
			return err
		}

		if len(row) != len(headers) {
			shapeErr := errs.AtLine(errs.RowShape, in.File, line, "expected %d fields, got %d", len(headers), len(row))
			if herr := onError(shapeErr); herr != nil {
				return herr
			}
			continue
		}

		values := make([]any, len(fields))
		var convErr *errs.Error
		for i, idx := range projection {
			if idx < 0 {
				continue
			}
			if !p.typeInference {
				values[i] = row[idx]
				continue
			}
			converted, err := typeutils.ConvertValue(row[idx], fieldTypes[i])
			if err != nil {
				convErr = errs.AtLine(errs.MalformedRecord, in.File, line, "field %s: %s", fields[i], err)
				break
			}
			values[i] = converted
		}
		if convErr != nil {
			if herr := onError(convErr); herr != nil {
				return herr
			}
			continue
		}

		if err := callback(ctx, types.NewRecord(in.File, line, fields, values)); err != nil {
			return err
		}
		recordCount++
	}

	logger.Infof("Processed %d records from %s", recordCount, in.File)
	return nil
}

// project maps every schema field to its column in this file's header, -1
// when the file lacks it. Columns unknown to the schema are dropped.
func project(file string, fields, headers []string) []int {
	position := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := position[h]; !dup {
			position[h] = i
		}
	}

	projection := make([]int, len(fields))
	for i, field := range fields {
		idx, found := position[field]
		if !found {
			idx = -1
		}
		projection[i] = idx
		delete(position, field)
	}
	for extra := range position {
		logger.Warnf("Column %q of %s is not in the schema and is dropped", extra, file)
	}
	return projection
}
