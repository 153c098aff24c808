// Package schema decides which files a stream's schema is inferred from.
package schema

import (
	"context"
	"errors"

	"github.com/datazip-inc/filetap/pkg/compression"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/pkg/parser"
	"github.com/datazip-inc/filetap/pkg/storage"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
)

// SamplingStrategy governs how much data is inspected to infer a schema.
type SamplingStrategy string

const (
	// First trusts the first qualifying file; later files are assumed to conform.
	First SamplingStrategy = "first"
	// All would scan every record of every file. Declared, not supported.
	All SamplingStrategy = "all"
)

func ParseSamplingStrategy(s string) (SamplingStrategy, error) {
	switch SamplingStrategy(s) {
	case "", First:
		return First, nil
	case All:
		return "", errs.New(errs.NotImplemented, "'all' jsonl_sampling_strategy is not supported yet")
	default:
		return "", errs.New(errs.Configuration, "%q is not a valid 'jsonl_sampling_strategy'", s)
	}
}

// OpenFunc opens the decoded stream of one entry.
type OpenFunc func(ctx context.Context, entry storage.FileEntry) (*compression.Stream, error)

type Inferencer struct {
	parser   parser.Parser
	strategy SamplingStrategy
	onError  parser.ErrorHandler
}

func NewInferencer(p parser.Parser, strategy SamplingStrategy) (*Inferencer, error) {
	if p == nil {
		return nil, errs.New(errs.Configuration, "schema inference needs a parser")
	}
	if _, err := ParseSamplingStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = First
	}
	return &Inferencer{parser: p, strategy: strategy}, nil
}

// WithErrorHandler lets Infer move past files whose sample fails with a
// tolerable error when h returns nil. Parsers also consult h for malformed
// records met while sampling.
func (i *Inferencer) WithErrorHandler(h parser.ErrorHandler) *Inferencer {
	i.onError = h
	return i
}

func (i *Inferencer) Strategy() SamplingStrategy {
	return i.strategy
}

// Sample infers a schema from a single entry. It returns parser.ErrNoSample
// when the entry holds nothing to infer from. The decoded stream is always
// closed before returning.
func (i *Inferencer) Sample(ctx context.Context, entry storage.FileEntry, open OpenFunc) (*types.Schema, error) {
	stream, err := open(ctx, entry)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warnf("failed to close %s: %s", entry.Path, cerr)
		}
	}()

	return i.parser.InferSchema(ctx, parser.Input{File: entry.Path, Name: stream.Name, Reader: stream, OnError: i.onError})
}

// Infer returns the frozen schema of the first qualifying entry. Entries
// without a sample are passed over; when none qualifies the schema is empty.
func (i *Inferencer) Infer(ctx context.Context, entries []storage.FileEntry, open OpenFunc) (*types.Schema, error) {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		schema, err := i.Sample(ctx, entry, open)
		if errors.Is(err, parser.ErrNoSample) {
			logger.Infof("No sample in %s, trying the next file", entry.Path)
			continue
		}
		if e, ok := errs.As(err); ok && e.Kind.Tolerable() && i.onError != nil {
			if herr := i.onError(e); herr != nil {
				return nil, herr
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		logger.Infof("Schema inferred from %s out of %d candidate files", entry.Path, len(entries))
		return schema.Freeze(), nil
	}

	logger.Warnf("No file with a sample among %d files, the schema is empty", len(entries))
	return types.NewSchema().Freeze(), nil
}
