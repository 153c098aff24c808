package driver

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/drivers/abstract"
	"github.com/datazip-inc/filetap/pkg/compression"
	"github.com/datazip-inc/filetap/pkg/parser"
	"github.com/datazip-inc/filetap/pkg/pipeline"
	"github.com/datazip-inc/filetap/pkg/schema"
	"github.com/datazip-inc/filetap/pkg/storage"
	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/logger"
)

//go:embed resources/spec.json
var specJSON []byte

var errFirstEntry = errors.New("first entry found")

// File reads one stream from files on local disk or in S3
type File struct {
	config   *Config
	source   storage.Source
	pipeline *pipeline.Pipeline
}

// GetConfigRef returns a reference to the config struct
func (f *File) GetConfigRef() abstract.Config {
	f.config = &Config{}
	return f.config
}

// Spec returns the JSON schema of the config
func (f *File) Spec() any {
	return json.RawMessage(specJSON)
}

func (f *File) Type() string {
	return "file"
}

func (f *File) StreamName() string {
	if f.config == nil || f.config.StreamName == "" {
		return constants.DefaultStreamName
	}
	return f.config.StreamName
}

// Setup validates the config and assembles storage, parser and pipeline. No
// file is opened here.
func (f *File) Setup(ctx context.Context) error {
	if f.config == nil {
		return fmt.Errorf("config not loaded")
	}
	if err := f.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	raw, err := f.openSource(ctx)
	if err != nil {
		return err
	}
	// local files are read in place; caching only applies to remote protocols
	cached := raw
	if f.config.Protocol != constants.ProtocolFile {
		cached, err = storage.NewCached(raw, f.config.CachingStrategy, f.config.CacheDir)
		if err != nil {
			_ = raw.Close()
			return fmt.Errorf("failed to set up %s cache: %w", f.config.CachingStrategy, err)
		}
	}
	// one attempt plus retry_count retries
	f.source = storage.NewRetrying(cached, *f.config.RetryCount+1, constants.DefaultRetryTimeout)

	p, err := parser.New(f.config.ParserConfig())
	if err != nil {
		return err
	}
	pattern, err := f.config.Pattern()
	if err != nil {
		return err
	}
	if pattern != nil {
		logger.Infof("Using file regex filter: %s", f.config.FileRegex)
	}
	codec, err := compression.ParseStrategy(f.config.Compression)
	if err != nil {
		return err
	}
	sampling, err := schema.ParseSamplingStrategy(f.config.JSONLSamplingStrategy)
	if err != nil {
		return err
	}

	f.pipeline, err = pipeline.New(pipeline.Options{
		Stream:      f.config.StreamName,
		Source:      f.source,
		Pattern:     pattern,
		Compression: codec,
		Parser:      p,
		Sampling:    sampling,
		OnError:     f.config.OnError,
	})
	return err
}

func (f *File) openSource(ctx context.Context) (storage.Source, error) {
	switch f.config.Protocol {
	case constants.ProtocolS3:
		if f.config.S3EndpointURL != "" {
			logger.Infof("Connecting to S3-compatible endpoint: %s", f.config.S3EndpointURL)
		} else {
			logger.Infof("Connecting to AWS S3 in region: %s", f.config.S3Region)
		}
		return storage.NewS3Source(ctx, f.config.S3Options())
	default:
		logger.Infof("Reading files from local path: %s", f.config.Filepath)
		return storage.NewLocalSource(f.config.Filepath)
	}
}

// Check verifies the location can be listed. Finding no file is not a failure.
func (f *File) Check(ctx context.Context) error {
	if f.source == nil {
		return fmt.Errorf("driver not set up")
	}
	pattern, err := f.config.Pattern()
	if err != nil {
		return err
	}
	var first string
	err = f.source.List(ctx, "", pattern, func(e storage.FileEntry) error {
		first = e.Path
		return errFirstEntry
	})
	if err != nil && !errors.Is(err, errFirstEntry) {
		return fmt.Errorf("failed to list %s: %w", f.config.Filepath, err)
	}
	if first == "" {
		logger.Warnf("No file under %s matches the configured regex", f.config.Filepath)
		return nil
	}
	logger.Infof("Connection check succeeded, first matching file is %s", first)
	return nil
}

func (f *File) Discover(ctx context.Context) (*types.Schema, error) {
	if f.pipeline == nil {
		return nil, fmt.Errorf("driver not set up")
	}
	return f.pipeline.Discover(ctx)
}

func (f *File) Read(ctx context.Context, handler pipeline.Handler) (*pipeline.Summary, error) {
	if f.pipeline == nil {
		return nil, fmt.Errorf("driver not set up")
	}
	return f.pipeline.Run(ctx, handler)
}

// CloseConnection releases the source and removes per-run cached bytes.
func (f *File) CloseConnection() {
	if f.source == nil {
		return
	}
	if err := f.source.Close(); err != nil {
		logger.Warnf("failed to close source: %s", err)
	}
	f.source = nil
}
