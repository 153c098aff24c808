package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/utils/logger"
)

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options holds the already resolved connection settings; nothing here is
// read from the process environment.
type S3Options struct {
	// Location is "bucket" or "bucket/prefix"
	Location        string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Anonymous       bool
}

// S3Source lists keys under a bucket prefix and streams objects without
// downloading them.
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// ParseLocation splits "bucket/prefix" into its parts. A leading "s3://" is accepted.
func ParseLocation(location string) (bucket, prefix string, err error) {
	location = strings.TrimPrefix(location, "s3://")
	bucket, prefix, _ = strings.Cut(location, "/")
	if bucket == "" {
		return "", "", errs.New(errs.Configuration, "filepath %q does not name a bucket", location)
	}
	return bucket, prefix, nil
}

// NewS3Source builds an S3 client from opts. Static credentials are used when
// given, anonymous access when requested, the default chain otherwise.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	bucket, prefix, err := ParseLocation(opts.Location)
	if err != nil {
		return nil, err
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	switch {
	case opts.Anonymous:
		logger.Info("Using anonymous access for S3")
		configOpts = append(configOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case opts.AccessKeyID != "" && opts.SecretAccessKey != "":
		logger.Info("Using static credentials for S3 authentication")
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	default:
		logger.Info("Using default credential chain (IAM role, instance profile, or shared config)")
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "failed to load AWS config")
	}

	var client *s3.Client
	if opts.Endpoint != "" {
		logger.Infof("Connecting to S3-compatible endpoint: %s", opts.Endpoint)
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		logger.Infof("Connecting to AWS S3 in region: %s", opts.Region)
		client = s3.NewFromConfig(cfg)
	}
	return NewS3SourceWithClient(client, bucket, prefix), nil
}

// NewS3SourceWithClient wraps an existing client; prefix is joined in front of
// every listing prefix.
func NewS3SourceWithClient(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) Name() string {
	return "s3://" + s.bucket
}

func (s *S3Source) List(ctx context.Context, prefix string, pattern *regexp.Regexp, fn func(FileEntry) error) error {
	fullPrefix := s.prefix + prefix
	logger.Infof("Discovering files in bucket: %s with prefix: %s", s.bucket, fullPrefix)

	// S3 returns keys in ascending UTF-8 binary order
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	pageCount := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return classifyS3Error(err, fullPrefix)
		}
		pageCount++
		logger.Debugf("Processing S3 list page %d (%d objects in this page)", pageCount, len(page.Contents))

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// directory markers
			if strings.HasSuffix(key, "/") {
				continue
			}
			if !matches(pattern, key) {
				logger.Debugf("Skipping file %s (does not match pattern)", key)
				continue
			}
			entry := FileEntry{
				Path:    key,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				source:  s,
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *S3Source) Open(ctx context.Context, entry FileEntry) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(entry.Path),
	})
	if err != nil {
		return nil, classifyS3Error(err, entry.Path)
	}
	return &s3Body{ReadCloser: out.Body, key: entry.Path}, nil
}

// s3Body classifies failures while streaming an object body the same way as
// failed requests, so a dropped connection surfaces as a storage error and
// not as corrupt data to the codec reading it.
type s3Body struct {
	io.ReadCloser
	key string
}

func (b *s3Body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = classifyS3Error(err, b.key)
	}
	return n, err
}

func (s *S3Source) Close() error {
	return nil
}

func classifyS3Error(err error, key string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := errs.Transient
	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &noSuchBucket):
		kind = errs.NotFound
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			kind = errs.NotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "InvalidToken", "AllAccessDisabled", "AccountProblem":
			kind = errs.Access
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "RequestTimeTooSkewed":
			kind = errs.Transient
		default:
			if apiErr.ErrorFault() == smithy.FaultClient {
				kind = errs.Unknown
			}
		}
	}
	return errs.Wrap(kind, err, "s3 request failed for %s", key).WithFile(key, 0)
}
