package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datazip-inc/filetap/pkg/errs"
)

// fakeS3 serves objects from memory, two keys per listing page.
type fakeS3 struct {
	objects  map[string]string
	listErr  error
	getErr   error
	bodyErr  error
	getCalls int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	var r io.Reader = strings.NewReader(body)
	if f.bodyErr != nil {
		r = io.MultiReader(r, iotest.ErrReader(f.bodyErr))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(r)}, nil
}

func TestS3SourceList(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"data/a.csv":     "1",
		"data/b.csv":     "22",
		"data/c.jsonl":   "333",
		"data/sub/":      "",
		"data/sub/d.csv": "4444",
		"other/e.csv":    "5",
	}}
	src := NewS3SourceWithClient(fake, "bucket", "data/")
	assert.Equal(t, "s3://bucket", src.Name())

	entries, err := ListAll(context.Background(), src, "", regexp.MustCompile(`\.csv$`))
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.csv", "data/b.csv", "data/sub/d.csv"}, paths(entries))
	assert.Equal(t, int64(2), entries[1].Size)

	rc, err := entries[2].Open(context.Background())
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "4444", string(b))
}

func TestS3SourceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected errs.Kind
	}{
		{"missing key", &s3types.NoSuchKey{}, errs.NotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, errs.Access},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultServer}, errs.Transient},
		{"unknown client fault", &smithy.GenericAPIError{Code: "InvalidArgument", Fault: smithy.FaultClient}, errs.Unknown},
		{"network failure", errors.New("connection reset by peer"), errs.Transient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := NewS3SourceWithClient(&fakeS3{getErr: tc.err}, "bucket", "")
			_, err := src.Open(context.Background(), FileEntry{Path: "k"})
			require.Error(t, err)
			assert.Equal(t, tc.expected, errs.KindOf(err))
		})
	}
}

func TestS3SourceBodyReadFailure(t *testing.T) {
	reset := errors.New("read tcp 10.0.0.1:443: connection reset by peer")
	tests := []struct {
		name     string
		err      error
		expected errs.Kind
	}{
		{"connection reset", reset, errs.Transient},
		{"server fault", &smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer}, errs.Transient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeS3{objects: map[string]string{"a.csv.gz": "partial"}, bodyErr: tc.err}
			src := NewS3SourceWithClient(fake, "bucket", "")
			rc, err := src.Open(context.Background(), FileEntry{Path: "a.csv.gz"})
			require.NoError(t, err)
			defer rc.Close()

			data, err := io.ReadAll(rc)
			assert.Equal(t, "partial", string(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			e, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.expected, e.Kind)
			assert.Equal(t, "a.csv.gz", e.File)
		})
	}

	t.Run("cancellation passes through", func(t *testing.T) {
		fake := &fakeS3{objects: map[string]string{"a.csv": "x"}, bodyErr: context.Canceled}
		rc, err := NewS3SourceWithClient(fake, "bucket", "").Open(context.Background(), FileEntry{Path: "a.csv"})
		require.NoError(t, err)
		_, err = io.ReadAll(rc)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, errs.Unknown, errs.KindOf(err))
	})
}

func TestS3SourceOpenVanished(t *testing.T) {
	src := NewS3SourceWithClient(&fakeS3{objects: map[string]string{}}, "bucket", "")
	_, err := src.Open(context.Background(), FileEntry{Path: "gone.csv"})
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		location, bucket, prefix string
		expectErr                bool
	}{
		{"bucket", "bucket", "", false},
		{"bucket/path/to/", "bucket", "path/to/", false},
		{"s3://bucket/x", "bucket", "x", false},
		{"", "", "", true},
		{"/x", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.location, func(t *testing.T) {
			bucket, prefix, err := ParseLocation(tc.location)
			if tc.expectErr {
				assert.True(t, errs.Is(err, errs.Configuration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.prefix, prefix)
		})
	}
}
