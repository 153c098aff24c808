package driver

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/pkg/compression"
	"github.com/datazip-inc/filetap/pkg/errs"
	"github.com/datazip-inc/filetap/pkg/parser"
	"github.com/datazip-inc/filetap/pkg/schema"
	"github.com/datazip-inc/filetap/pkg/storage"
)

// Config represents the configuration for the file source connector
type Config struct {
	StreamName string             `json:"stream_name" yaml:"stream_name"`
	Protocol   constants.Protocol `json:"protocol" yaml:"protocol" validate:"required,oneof=file s3"`
	// Filepath is a local directory or file, or "bucket/prefix" for s3
	Filepath  string `json:"filepath" yaml:"filepath" validate:"required"`
	FileRegex string `json:"file_regex" yaml:"file_regex"`

	// ===== Format Configuration =====
	FileType                  string `json:"file_type" yaml:"file_type"`
	Compression               string `json:"compression" yaml:"compression"`
	Delimiter                 string `json:"delimiter" yaml:"delimiter"`
	QuoteCharacter            string `json:"quote_character" yaml:"quote_character"`
	DelimitedTypeInference    bool   `json:"delimited_type_inference" yaml:"delimited_type_inference"`
	JSONLSamplingStrategy     string `json:"jsonl_sampling_strategy" yaml:"jsonl_sampling_strategy"`
	JSONLTypeCoercionStrategy string `json:"jsonl_type_coercion_strategy" yaml:"jsonl_type_coercion_strategy"`

	// ===== S3 Connection Configuration =====
	S3AnonymousConnection bool   `json:"s3_anonymous_connection" yaml:"s3_anonymous_connection"`
	AWSAccessKeyID        string `json:"AWS_ACCESS_KEY_ID" yaml:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey    string `json:"AWS_SECRET_ACCESS_KEY" yaml:"AWS_SECRET_ACCESS_KEY"`
	S3Region              string `json:"s3_region" yaml:"s3_region"`
	S3EndpointURL         string `json:"s3_endpoint_url" yaml:"s3_endpoint_url" validate:"omitempty,url"`

	// ===== Caching & Error Handling Configuration =====
	CachingStrategy constants.CachingStrategy `json:"caching_strategy" yaml:"caching_strategy" validate:"omitempty,oneof=none once persistent"`
	CacheDir        string                    `json:"cache_dir" yaml:"cache_dir"`
	OnError         constants.OnErrorPolicy   `json:"on_error" yaml:"on_error" validate:"omitempty,oneof=fail skip"`
	RetryCount      *int                      `json:"retry_count,omitempty" yaml:"retry_count,omitempty" validate:"omitempty,gte=0"`
}

var (
	validate   = validator.New()
	translator ut.Translator
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Sprintf("failed to register validator translations: %s", err))
	}
	// report option names the way users write them
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ResolveEnv fills credentials and region left empty in the config file from
// the ambient environment, looked up once at startup.
func (c *Config) ResolveEnv(lookup func(key string) string) {
	if c.AWSAccessKeyID == "" {
		c.AWSAccessKeyID = lookup(constants.AWSAccessKeyID)
	}
	if c.AWSSecretAccessKey == "" {
		c.AWSSecretAccessKey = lookup(constants.AWSSecretAccessKey)
	}
	if c.S3Region == "" {
		c.S3Region = lookup(constants.AWSRegion)
	}
}

func (c *Config) setDefaults() {
	c.StreamName = strings.TrimSpace(c.StreamName)
	if c.StreamName == "" {
		c.StreamName = constants.DefaultStreamName
	}
	if c.FileType == "" {
		c.FileType = string(constants.Delimited)
	}
	if c.Compression == "" {
		c.Compression = string(compression.Detect)
	}
	if c.Delimiter == "" {
		c.Delimiter = constants.DetectValue
	}
	if c.QuoteCharacter == "" {
		c.QuoteCharacter = constants.DefaultQuoteCharacter
	}
	if c.JSONLSamplingStrategy == "" {
		c.JSONLSamplingStrategy = string(schema.First)
	}
	if c.JSONLTypeCoercionStrategy == "" {
		c.JSONLTypeCoercionStrategy = string(parser.CoerceAny)
	}
	if c.S3Region == "" {
		c.S3Region = constants.DefaultS3Region
	}
	if c.CachingStrategy == "" {
		c.CachingStrategy = constants.CacheOnce
	}
	if c.OnError == "" {
		c.OnError = constants.OnErrorFail
	}
	// 0 disables retries, so only an absent value takes the default
	if c.RetryCount == nil {
		retries := constants.DefaultRetryCount
		c.RetryCount = &retries
	}
}

// validateFileType mirrors the file types a stream can be discovered for.
func validateFileType(fileType string) error {
	switch constants.FileType(fileType) {
	case constants.Delimited, constants.JSONL, constants.Parquet:
		return nil
	case constants.Avro:
		return errs.New(errs.NotImplemented, "'avro' file_type is not supported yet")
	}
	if lower := strings.ToLower(fileType); lower == "csv" || lower == "tsv" {
		return errs.New(errs.Configuration, "%q is not a valid 'file_type'. Did you mean 'delimited'?", fileType)
	}
	return errs.New(errs.Configuration, "%q is not a valid 'file_type'.", fileType)
}

// Validate applies defaults and rejects invalid or unsupported option
// combinations before any file is touched.
func (c *Config) Validate() error {
	c.setDefaults()

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !asValidationErrors(err, &verrs) {
			return errs.Wrap(errs.Configuration, err, "invalid config")
		}
		messages := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			messages = append(messages, fe.Translate(translator))
		}
		return errs.New(errs.Configuration, "%s", strings.Join(messages, "; "))
	}

	if err := validateFileType(c.FileType); err != nil {
		return err
	}
	if _, err := compression.ParseStrategy(c.Compression); err != nil {
		return err
	}
	if _, err := schema.ParseSamplingStrategy(c.JSONLSamplingStrategy); err != nil {
		return err
	}
	if _, err := parser.New(c.ParserConfig()); err != nil {
		return err
	}
	if _, err := c.Pattern(); err != nil {
		return err
	}

	if c.Protocol == constants.ProtocolS3 {
		if _, _, err := storage.ParseLocation(c.Filepath); err != nil {
			return err
		}
		// both must be provided together or omitted together for the default chain
		if !c.S3AnonymousConnection && (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			return errs.New(errs.Configuration, "'AWS_ACCESS_KEY_ID' and 'AWS_SECRET_ACCESS_KEY' must be provided together")
		}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// Pattern compiles file_regex; nil matches every file.
func (c *Config) Pattern() (*regexp.Regexp, error) {
	if c.FileRegex == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(c.FileRegex)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "'file_regex' is not a valid regular expression")
	}
	return pattern, nil
}

func (c *Config) ParserConfig() parser.Config {
	return parser.Config{
		FileType:       constants.FileType(c.FileType),
		Delimiter:      c.Delimiter,
		QuoteCharacter: c.QuoteCharacter,
		TypeInference:  c.DelimitedTypeInference,
		Coercion:       parser.CoercionStrategy(c.JSONLTypeCoercionStrategy),
		SpoolDir:       c.CacheDir,
	}
}

func (c *Config) S3Options() storage.S3Options {
	return storage.S3Options{
		Location:        c.Filepath,
		Region:          c.S3Region,
		Endpoint:        c.S3EndpointURL,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		Anonymous:       c.S3AnonymousConnection,
	}
}
