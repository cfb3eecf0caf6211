// Package starlark evaluates per-feature attribute and geometry expressions.
//
// Expressions are written in the QGIS expression style ("field" references,
// $geometry, AND/OR) and translated to Starlark before evaluation. Each
// feature is evaluated with its attributes and geometry as globals.
package starlark

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// FromGo converts a feature attribute to a Starlark value.
// Supported: nil, string, bool, integer and float kinds, json.Number,
// []any, []string and map[string]any.
func FromGo(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return starlark.MakeInt64(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return starlark.Float(f), nil
	case []string:
		items := make([]starlark.Value, 0, len(val))
		for _, s := range val {
			items = append(items, starlark.String(s))
		}
		return starlark.NewList(items), nil
	case []any:
		items := make([]starlark.Value, 0, len(val))
		for i, item := range val {
			sv, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, sv)
		}
		return starlark.NewList(items), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported attribute type %T", v)
}

// ToGo converts an expression result back to an attribute value.
// Integers come back as int64 (or their decimal string when they overflow).
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return val.String(), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Indexable:
		out := make([]any, val.Len())
		for i := range out {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = gv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = gv
		}
		return out, nil
	case *Geometry:
		return nil, fmt.Errorf("geometry is not an attribute value")
	}
	return v.String(), nil
}
