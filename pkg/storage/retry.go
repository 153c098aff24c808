package storage

import (
	"context"
	"io"
	"regexp"
	"time"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/utils/backoff"
	"github.com/datazip-inc/filetap/utils/logger"
)

// Retrying retries transient failures of the wrapped source with exponential backoff.
type Retrying struct {
	src      Source
	attempts int
	sleep    time.Duration
}

func NewRetrying(src Source, attempts int, sleep time.Duration) *Retrying {
	return &Retrying{src: src, attempts: attempts, sleep: sleep}
}

// Unwrap returns the wrapped source.
func (r *Retrying) Unwrap() Source {
	return r.src
}

func (r *Retrying) Name() string {
	return r.src.Name()
}

func shouldRetry(err error) bool {
	retry := errs.KindOf(err).Retryable()
	if retry {
		logger.Warnf("retrying after transient storage failure: %s", err)
	}
	return retry
}

// List restarts a failed listing from the beginning and suppresses entries
// already delivered to fn.
func (r *Retrying) List(ctx context.Context, prefix string, pattern *regexp.Regexp, fn func(FileEntry) error) error {
	delivered := 0
	return backoff.Retry(ctx, r.attempts, r.sleep, func() error {
		seen := 0
		return r.src.List(ctx, prefix, pattern, func(e FileEntry) error {
			seen++
			if seen <= delivered {
				return nil
			}
			delivered++
			return fn(Bind(e, r))
		})
	}, shouldRetry)
}

func (r *Retrying) Open(ctx context.Context, entry FileEntry) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := backoff.Retry(ctx, r.attempts, r.sleep, func() error {
		var err error
		rc, err = r.src.Open(ctx, entry)
		return err
	}, shouldRetry)
	return rc, err
}

func (r *Retrying) Close() error {
	return r.src.Close()
}
