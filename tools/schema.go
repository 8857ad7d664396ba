package tools

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Argument type names accepted in a Schema.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeDict   = "dict"
	TypeList   = "list"
)

// Schema declares the arguments a tool accepts.
//
// Example:
//
//	Schema{
//	    Fields:   map[string]string{"symbol": TypeString, "top_k": TypeInt},
//	    Required: []string{"symbol"},
//	}
type Schema struct {
	// Fields maps argument names to type names.
	Fields map[string]string `json:"fields"`

	// Required lists argument names that must be present.
	Required []string `json:"required,omitempty"`

	// AllowAdditional permits arguments not declared in Fields.
	AllowAdditional bool `json:"allow_additional,omitempty"`
}

// Validate checks args against the schema. Checks run in a fixed order so
// the same input always yields the same message.
func (s Schema) Validate(args map[string]interface{}) error {
	for _, field := range s.Required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("missing required argument: %s", field)
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		expected, declared := s.Fields[name]
		if !declared {
			if s.AllowAdditional {
				continue
			}
			return fmt.Errorf("unexpected argument: %s", name)
		}
		if !matchesType(args[name], expected) {
			return fmt.Errorf("argument '%s' has wrong type: expected %s, got %s",
				name, expected, typeName(args[name]))
		}
	}

	return nil
}

// Describe renders the schema as a compact argument list, e.g. "symbol: string, top_k?: int".
func (s Schema) Describe() string {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		marker := "?"
		if required[name] {
			marker = ""
		}
		parts = append(parts, fmt.Sprintf("%s%s: %s", name, marker, s.Fields[name]))
	}
	return strings.Join(parts, ", ")
}

// matchesType reports whether value satisfies the expected type name.
// JSON numbers decode as float64, so whole floats satisfy "int", and ints
// satisfy "float".
func matchesType(value interface{}, expected string) bool {
	actual := typeName(value)
	if actual == expected {
		return true
	}
	switch expected {
	case TypeInt:
		if f, ok := value.(float64); ok {
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
	case TypeFloat:
		return actual == TypeInt
	}
	return false
}

// typeName returns a simple type name for a value.
func typeName(value interface{}) string {
	if value == nil {
		return "nil"
	}

	switch value.(type) {
	case string:
		return TypeString
	case int, int8, int16, int32, int64:
		return TypeInt
	case float32, float64:
		return TypeFloat
	case bool:
		return TypeBool
	case map[string]interface{}:
		return TypeDict
	case []interface{}:
		return TypeList
	default:
		return reflect.TypeOf(value).String()
	}
}

// intArg reads an integer argument that may have arrived as a JSON number.
func intArg(args map[string]interface{}, name string, fallback int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
