package typeutils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datazip-inc/filetap/types"
)

// Resolve upserts one field per key with the type JSON itself implies for the
// value. A null value says nothing about the type, so the field becomes Any.
func Resolve(schema *types.Schema, fields []string, values []any) error {
	if len(fields) != len(values) {
		return fmt.Errorf("fields and values are misaligned: %d != %d", len(fields), len(values))
	}
	for i, field := range fields {
		typ := types.TypeOfJSONValue(values[i])
		if typ == types.Null || typ == types.Unknown {
			typ = types.Any
		}
		if err := schema.UpsertField(field, typ, true); err != nil {
			return err
		}
	}
	return nil
}

func isNullCell(value string) bool {
	return value == "" || strings.EqualFold(value, "null")
}

// InferColumnType infers the data type of a delimited column from sample
// values. A type is chosen only when every non-null sample parses as it.
func InferColumnType(sampleRows [][]string, columnIndex int) types.DataType {
	allInt := true
	allFloat := true
	allBool := true
	nonNullCount := 0

	for _, row := range sampleRows {
		if columnIndex >= len(row) {
			continue
		}

		value := strings.TrimSpace(row[columnIndex])
		if isNullCell(value) {
			continue
		}
		nonNullCount++

		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			allFloat = false
		}
		lowerValue := strings.ToLower(value)
		if lowerValue != "true" && lowerValue != "false" {
			allBool = false
		}
	}

	switch {
	case nonNullCount == 0:
		return types.String
	case allBool:
		return types.Bool
	case allInt:
		return types.Int64
	case allFloat:
		return types.Float64
	default:
		return types.String
	}
}

// ConvertValue converts a delimited cell to the column's inferred type.
// Empty and "null" cells become nil.
func ConvertValue(value string, fieldType types.DataType) (any, error) {
	trimmed := strings.TrimSpace(value)
	if isNullCell(trimmed) {
		return nil, nil
	}

	switch fieldType {
	case types.Int64:
		intVal, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to convert '%s' to integer: %w", trimmed, err)
		}
		return intVal, nil
	case types.Float64:
		floatVal, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to convert '%s' to float: %w", trimmed, err)
		}
		return floatVal, nil
	case types.Bool:
		boolVal, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to convert '%s' to boolean: %w", trimmed, err)
		}
		return boolVal, nil
	}
	return value, nil
}
