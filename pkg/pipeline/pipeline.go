// Package pipeline binds a storage source, the compression resolver, a format
// parser and schema inference into one ordered record stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/compression"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/pkg/parser"
	"github.com/datazip-inc/filetap/pkg/schema"
	"github.com/datazip-inc/filetap/pkg/storage"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
)

// ErrStop may be returned by a Handler to end the run early. Run then
// returns without error.
var ErrStop = errors.New("stop requested by handler")

type State string

const (
	Idle          State = "idle"
	Listing       State = "listing"
	Opening       State = "opening"
	Decompressing State = "decompressing"
	Inferring     State = "inferring"
	Parsing       State = "parsing"
	Emitting      State = "emitting"
	Done          State = "done"
	Failed        State = "failed"
)

// Handler consumes one stream: its schema once, then every record in order.
type Handler interface {
	OnSchema(stream string, schema *types.Schema) error
	OnRecord(record types.Record) error
}

type Options struct {
	// Stream names the single stream this pipeline produces
	Stream      string
	Source      storage.Source
	Prefix      string
	Pattern     *regexp.Regexp
	Compression compression.Strategy
	Parser      parser.Parser
	Sampling    schema.SamplingStrategy
	OnError     constants.OnErrorPolicy
}

// Summary describes a finished run.
type Summary struct {
	Files   int
	Records int
	// Skipped holds every unit dropped under the skip policy
	Skipped *multierror.Error
}

func (s *Summary) SkippedCount() int {
	if s.Skipped == nil {
		return 0
	}
	return len(s.Skipped.Errors)
}

type Pipeline struct {
	opts       Options
	inferencer *schema.Inferencer

	mu    sync.Mutex
	state State
}

func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, errs.New(errs.Configuration, "pipeline needs a storage source")
	}
	if opts.Stream == "" {
		opts.Stream = constants.DefaultStreamName
	}
	if opts.Compression == "" {
		opts.Compression = compression.Detect
	}
	switch opts.OnError {
	case "":
		opts.OnError = constants.OnErrorFail
	case constants.OnErrorFail, constants.OnErrorSkip:
	default:
		return nil, errs.New(errs.Configuration, "%q is not a valid 'on_error'", opts.OnError)
	}

	inferencer, err := schema.NewInferencer(opts.Parser, opts.Sampling)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{opts: opts, state: Idle}
	if opts.OnError == constants.OnErrorSkip {
		inferencer.WithErrorHandler(func(e *errs.Error) error {
			logger.Warnf("Ignoring %s while sampling: %s", e.File, e)
			return nil
		})
	}
	p.inferencer = inferencer
	return p, nil
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// open resolves the decoded stream of one entry.
func (p *Pipeline) open(ctx context.Context, entry storage.FileEntry) (*compression.Stream, error) {
	p.setState(Opening)
	raw, err := entry.Open(ctx)
	if err != nil {
		return nil, err
	}
	p.setState(Decompressing)
	return compression.Resolve(entry.Path, p.opts.Compression, raw)
}

func (p *Pipeline) finish(err error) error {
	if err != nil {
		p.setState(Failed)
		return err
	}
	p.setState(Done)
	return nil
}

// Discover lists every matching entry and infers the stream schema without
// emitting records.
func (p *Pipeline) Discover(ctx context.Context) (*types.Schema, error) {
	p.setState(Listing)
	entries, err := storage.ListAll(ctx, p.opts.Source, p.opts.Prefix, p.opts.Pattern)
	if err != nil {
		return nil, p.finish(fmt.Errorf("failed to list files: %w", err))
	}
	logger.Infof("Found %d files for stream %s", len(entries), p.opts.Stream)

	p.setState(Inferring)
	s, err := p.inferencer.Infer(ctx, entries, p.open)
	if err != nil {
		return nil, p.finish(err)
	}
	return s, p.finish(nil)
}

// Run emits the schema followed by every record of every matching entry, in
// listing order. Listing runs concurrently with parsing; files are parsed one
// at a time.
func (p *Pipeline) Run(ctx context.Context, h Handler) (*Summary, error) {
	summary := &Summary{}
	p.setState(Listing)

	group, groupCtx := errgroup.WithContext(ctx)
	entries := make(chan storage.FileEntry, constants.ListingBufferSize)

	group.Go(func() error {
		defer close(entries)
		err := p.opts.Source.List(groupCtx, p.opts.Prefix, p.opts.Pattern, func(e storage.FileEntry) error {
			select {
			case entries <- e:
				return nil
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		})
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		r := &run{Pipeline: p, handler: h, summary: summary}
		for entry := range entries {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if err := r.file(groupCtx, entry); err != nil {
				return err
			}
		}
		if err := groupCtx.Err(); err != nil {
			return err
		}
		if r.schema == nil {
			logger.Infof("No records for stream %s", p.opts.Stream)
			return r.announce(types.NewSchema().Freeze())
		}
		return nil
	})

	err := group.Wait()
	if errors.Is(err, ErrStop) {
		logger.Infof("Stream %s stopped by handler after %d records", p.opts.Stream, summary.Records)
		err = nil
	}
	if err == nil {
		logger.Infof("Stream %s done: %d files, %d records, %d skipped", p.opts.Stream, summary.Files, summary.Records, summary.SkippedCount())
	}
	return summary, p.finish(err)
}

// run is the state of a single Run call.
type run struct {
	*Pipeline
	handler Handler
	summary *Summary
	schema  *types.Schema
}

func (r *run) announce(s *types.Schema) error {
	r.schema = s
	r.setState(Emitting)
	return r.handler.OnSchema(r.opts.Stream, s)
}

// skip absorbs err under the skip policy when it is isolated to one unit.
func (r *run) skip(err error) error {
	e, ok := errs.As(err)
	if !ok || !e.Kind.Tolerable() || r.opts.OnError != constants.OnErrorSkip {
		return err
	}
	logger.Warnf("Skipping %s: %s", e.File, e)
	r.summary.Skipped = multierror.Append(r.summary.Skipped, e)
	return nil
}

func (r *run) onRecordError(e *errs.Error) error {
	return r.skip(e)
}

func (r *run) file(ctx context.Context, entry storage.FileEntry) error {
	if r.schema == nil {
		r.setState(Inferring)
		s, err := r.inferencer.Sample(ctx, entry, r.open)
		if errors.Is(err, parser.ErrNoSample) {
			logger.Infof("No sample in %s, trying the next file", entry.Path)
			r.summary.Files++
			return nil
		}
		if err != nil {
			return r.skip(err)
		}
		logger.Infof("Schema for stream %s inferred from %s", r.opts.Stream, entry.Path)
		if err := r.announce(s.Freeze()); err != nil {
			return err
		}
	}

	stream, err := r.open(ctx, entry)
	if err != nil {
		return r.skip(err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warnf("failed to close %s: %s", entry.Path, cerr)
		}
	}()

	r.setState(Parsing)
	in := parser.Input{File: entry.Path, Name: stream.Name, Reader: stream}
	err = r.opts.Parser.StreamRecords(ctx, in, r.schema, func(_ context.Context, record types.Record) error {
		r.setState(Emitting)
		r.summary.Records++
		if err := r.handler.OnRecord(record); err != nil {
			return err
		}
		r.setState(Parsing)
		return nil
	}, r.onRecordError)
	if err != nil {
		return r.skip(err)
	}
	r.summary.Files++
	return nil
}
