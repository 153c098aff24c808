// uischema is used to serve the UI specifications of the jsonschema of the connectors
package spec

import (
	"fmt"

	"github.com/goccy/go-json"
)

var uiSchemaMap = map[string]string{
	"file": FileUISchema,
}

const FileUISchema = `{
  "ui:grid": [
    { "stream_name": 12, "protocol": 12 },
    { "filepath": 12, "file_regex": 12 },
    { "file_type": 12, "compression": 12 },
    { "delimiter": 12, "quote_character": 12 },
    { "delimited_type_inference": 12 },
    { "jsonl_sampling_strategy": 12, "jsonl_type_coercion_strategy": 12 },
    { "s3_anonymous_connection": 12, "s3_region": 12 },
    { "AWS_ACCESS_KEY_ID": 12, "AWS_SECRET_ACCESS_KEY": 12 },
    { "s3_endpoint_url": 12 },
    { "caching_strategy": 12, "cache_dir": 12 },
    { "on_error": 12, "retry_count": 12 }
  ],
  "protocol": {
    "ui:widget": "radio",
    "ui:enumNames": ["Local filesystem", "S3"]
  },
  "file_type": {
    "ui:enumNames": ["Delimited (CSV/TSV)", "JSON Lines", "Parquet", "Avro"]
  },
  "delimited_type_inference": {
    "ui:widget": "boolean"
  },
  "s3_anonymous_connection": {
    "ui:widget": "boolean"
  },
  "AWS_SECRET_ACCESS_KEY": {
    "ui:widget": "password"
  },
  "on_error": {
    "ui:widget": "radio",
    "ui:enumNames": ["Abort the sync", "Log and skip"]
  }
}`

func LoadUISchema(schemaType string) (map[string]any, error) {
	jsonStr, ok := uiSchemaMap[schemaType]
	if !ok {
		return nil, fmt.Errorf("ui schema not found for %s", schemaType)
	}
	var uiSchema map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &uiSchema); err != nil {
		return nil, fmt.Errorf("failed to parse ui schema for %s: %s", schemaType, err)
	}
	return uiSchema, nil
}
