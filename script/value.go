package script

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GoValue wraps a plain Go value as a script Value.
type GoValue struct {
	value any
}

// NewGoValue wraps v.
func NewGoValue(v any) *GoValue {
	return &GoValue{value: v}
}

func (v *GoValue) Value() any {
	return v.value
}

func (v *GoValue) String() string {
	return Stringify(v.value)
}

func (v *GoValue) IsTruthy() bool {
	return Truthy(v.value)
}

// Stringify renders a Go value for interpolation into a string: scalars use
// their natural form, nil renders empty, and composites render as JSON.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}

// Truthy converts any Go value to a boolean indicating truthiness.
func Truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case int:
		return value != 0
	case int8:
		return value != 0
	case int16:
		return value != 0
	case int32:
		return value != 0
	case int64:
		return value != 0
	case uint:
		return value != 0
	case uint8:
		return value != 0
	case uint16:
		return value != 0
	case uint32:
		return value != 0
	case uint64:
		return value != 0
	case float32:
		return value != 0.0
	case float64:
		return value != 0.0
	case string:
		return value != "" && strings.ToLower(value) != "false"
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		return v != nil
	}
}
