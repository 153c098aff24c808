package parser

import (
	"context"
	"errors"
	"io"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/types"
)

// ErrNoSample is returned by InferSchema when the input holds nothing to
// infer from, e.g. an empty file. The caller moves on to the next file.
var ErrNoSample = errors.New("no sample to infer schema from")

// Input is one decoded file handed to a parser.
type Input struct {
	// File identifies the source entry in errors and record provenance
	File string
	// Name is the effective decoded name, used for extension based detection
	Name   string
	Reader io.Reader
	// OnError decides per-record failures met while sampling; nil fails fast
	OnError ErrorHandler
}

// Parser defines the interface for file format parsers
// This interface separates parsing logic from storage operations (S3, local disk)
type Parser interface {
	// InferSchema reads a small sample from the input to infer the schema
	// Should not load the entire file into memory
	InferSchema(ctx context.Context, in Input) (*types.Schema, error)

	// StreamRecords reads records from the input and calls callback for each
	// record shaped by schema. Per-record failures go through onError.
	StreamRecords(ctx context.Context, in Input, schema *types.Schema, callback RecordCallback, onError ErrorHandler) error
}

// RecordCallback is called for each record during streaming
// Return error to stop processing
type RecordCallback func(ctx context.Context, record types.Record) error

// ErrorHandler decides what happens to a per-record failure: returning nil
// skips the record, returning an error aborts the file with it.
type ErrorHandler func(err *errs.Error) error

// FailFast aborts on the first per-record failure.
func FailFast(err *errs.Error) error {
	return err
}

func handlerOrDefault(h ErrorHandler) ErrorHandler {
	if h == nil {
		return FailFast
	}
	return h
}

// CoercionStrategy governs how JSON values are normalized into the schema.
type CoercionStrategy string

const (
	CoerceAny    CoercionStrategy = "any"
	CoerceString CoercionStrategy = "string"
	CoerceBlob   CoercionStrategy = "blob"
)

// Config holds the format options shared by every parser.
type Config struct {
	FileType constants.FileType
	// Delimiter is a single character or "detect"
	Delimiter      string
	QuoteCharacter string
	// TypeInference enables typed delimited columns
	TypeInference bool
	Coercion      CoercionStrategy
	// SpoolDir holds temp files for formats that need random access
	SpoolDir string
}

// New returns the parser for the configured file type.
func New(cfg Config) (Parser, error) {
	switch cfg.FileType {
	case constants.Delimited:
		return NewDelimitedParser(cfg)
	case constants.JSONL:
		return NewJSONLParser(cfg)
	case constants.Parquet:
		return NewParquetParser(cfg), nil
	case constants.Avro:
		return NewAvroParser(), nil
	default:
		return nil, errs.New(errs.Configuration, "%q is not a valid 'file_type'.", cfg.FileType)
	}
}
