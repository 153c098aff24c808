package typeutils

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Stringify renders a decoded JSON value as a string without losing
// information: numbers keep their literal form, objects and arrays become
// compact JSON. nil stays nil so absent values remain distinguishable.
func Stringify(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("error marshaling value %v: %v", value, err)
		}
		return string(b), nil
	default:
		return fmt.Sprint(value), nil
	}
}

// NormalizeNumbers replaces json.Number values, at any depth, with int64 or
// float64 when the native value renders back to the same literal. Anything
// else (integers beyond int64, trailing zeros, exponents) stays a json.Number
// so the literal is emitted unchanged.
func NormalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		literal := v.String()
		if i, err := v.Int64(); err == nil && strconv.FormatInt(i, 10) == literal {
			return i
		}
		if f, err := v.Float64(); err == nil && strconv.FormatFloat(f, 'g', -1, 64) == literal {
			return f
		}
		return v
	case map[string]any:
		for k, sub := range v {
			v[k] = NormalizeNumbers(sub)
		}
		return v
	case []any:
		for i, sub := range v {
			v[i] = NormalizeNumbers(sub)
		}
		return v
	default:
		return value
	}
}
