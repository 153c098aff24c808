package constants

import (
	"time"
)

const (
	DefaultStreamName      = "file"
	DefaultRetryCount      = 3
	DefaultRetryTimeout    = 2 * time.Second
	DefaultDiscoverTimeout = 5 * time.Minute
	DefaultQuoteCharacter  = "\""
	DefaultS3Region        = "us-east-1"
	PersistentCacheDirName = "filetap-cache"
	OnceCacheDirPrefix     = "filetap-once-"
	SpoolFilePrefix        = "filetap-spool-"
	DetectValue            = "detect"

	// rows sampled from the first file when typed delimited inference is enabled
	DelimitedSampleRows = 100

	// entries buffered between the listing goroutine and the parse loop
	ListingBufferSize = 64

	// viper keys resolved once at startup
	LogLevel           = "LOG_LEVEL"
	LogFile            = "LOG_FILE"
	AWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	AWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	AWSRegion          = "AWS_REGION"
)

type Protocol string

const (
	ProtocolFile Protocol = "file"
	ProtocolS3   Protocol = "s3"
)

type FileType string

const (
	Delimited FileType = "delimited"
	JSONL     FileType = "jsonl"
	Parquet   FileType = "parquet"
	Avro      FileType = "avro"
)

type CachingStrategy string

const (
	CacheNone       CachingStrategy = "none"
	CacheOnce       CachingStrategy = "once"
	CachePersistent CachingStrategy = "persistent"
)

type OnErrorPolicy string

const (
	OnErrorFail OnErrorPolicy = "fail"
	OnErrorSkip OnErrorPolicy = "skip"
)
