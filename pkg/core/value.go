package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType is the declared type of an operation parameter.
type ValueType string

// Parameter value types.
const (
	TypeString      ValueType = "string"
	TypeNumber      ValueType = "number"
	TypeStringArray ValueType = "array<string>"
)

// Value is a typed parameter value produced by validation.
// Exactly one of the payload fields is meaningful, selected by Type.
type Value struct {
	Type ValueType
	str  string
	num  float64
	strs []string
}

// StringValue builds a string value.
func StringValue(s string) Value { return Value{Type: TypeString, str: s} }

// NumberValue builds a number value.
func NumberValue(f float64) Value { return Value{Type: TypeNumber, num: f} }

// StringsValue builds a string array value. The slice is copied.
func StringsValue(ss []string) Value {
	return Value{Type: TypeStringArray, strs: append([]string(nil), ss...)}
}

// String returns the string payload; empty for non-string values.
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeStringArray:
		return strings.Join(v.strs, ",")
	default:
		return ""
	}
}

// Number returns the numeric payload; zero for non-number values.
func (v Value) Number() float64 {
	if v.Type != TypeNumber {
		return 0
	}
	return v.num
}

// Strings returns a copy of the string array payload. A scalar string is
// returned as a one-element slice so single references and reference lists
// can be walked the same way.
func (v Value) Strings() []string {
	switch v.Type {
	case TypeStringArray:
		return append([]string(nil), v.strs...)
	case TypeString:
		return []string{v.str}
	default:
		return nil
	}
}

// Any converts the value back to a plain Go value for wire encoding.
func (v Value) Any() any {
	switch v.Type {
	case TypeString:
		return v.str
	case TypeNumber:
		return v.num
	case TypeStringArray:
		return v.Strings()
	default:
		return nil
	}
}

// Equal reports whether two values have the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeString:
		return v.str == o.str
	case TypeNumber:
		return v.num == o.num
	case TypeStringArray:
		if len(v.strs) != len(o.strs) {
			return false
		}
		for i := range v.strs {
			if v.strs[i] != o.strs[i] {
				return false
			}
		}
		return true
	}
	return false
}

// GoString renders the value for debugging and error messages.
func (v Value) GoString() string {
	switch v.Type {
	case TypeString:
		return strconv.Quote(v.str)
	case TypeStringArray:
		return fmt.Sprintf("%q", v.strs)
	default:
		return v.String()
	}
}
