package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func always(error) bool { return true }

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failures  int
		retry     func(error) bool
		wantErr   bool
		wantCalls int
	}{
		{"first attempt succeeds", 3, 0, always, false, 1},
		{"succeeds after failures", 3, 2, always, false, 3},
		{"exhausts attempts", 3, 5, always, true, 3},
		{"non retryable stops at once", 3, 5, func(error) bool { return false }, true, 1},
		{"zero attempts still runs once", 0, 0, always, false, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tc.attempts, time.Millisecond, func() error {
				calls++
				if calls <= tc.failures {
					return errFlaky
				}
				return nil
			}, tc.retry)
			if tc.wantErr {
				assert.ErrorIs(t, err, errFlaky)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errFlaky
	}, always)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}
