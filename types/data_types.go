package types

type DataType string

const (
	Null    DataType = "null"
	Int64   DataType = "integer"
	Float64 DataType = "number"
	String  DataType = "string"
	Bool    DataType = "boolean"
	Object  DataType = "object"
	Array   DataType = "array"
	Any     DataType = "any"
	Unknown DataType = "unknown"
)

// Tree Representation of TypeWeights
//
//	                5 (String)
//	               /
//	    3 (Float64)
//	       /
//	2 (Int64)
//	     /
//	0 (Bool)
//
// Object, Array and Any sit outside the tree; combining them with anything
// else widens to Any.
var TypeWeights = map[DataType]int{
	Bool:    0,
	Int64:   2,
	Float64: 3,
	String:  5,
}

// JSONSchemaTypes returns the JSON schema "type" list for the data type.
func (d DataType) JSONSchemaTypes(nullable bool) []string {
	var out []string
	switch d {
	case Any, Unknown:
		return []string{"string", "number", "integer", "boolean", "object", "array", "null"}
	case Null:
		return []string{"null"}
	default:
		out = []string{string(d)}
	}
	if nullable {
		out = append(out, string(Null))
	}
	return out
}

// TypeOfJSONValue maps a value decoded from JSON to its data type.
// Numbers are always Float64; JSON does not distinguish integers.
func TypeOfJSONValue(v any) DataType {
	switch v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case string:
		return String
	case map[string]any:
		return Object
	case []any:
		return Array
	case float64, float32, int, int64, interface{ Float64() (float64, error) }:
		return Float64
	default:
		return Unknown
	}
}
