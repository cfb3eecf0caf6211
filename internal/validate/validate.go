// Package validate is the single boundary where raw requests become typed,
// immutable core.ValidatedRequest values.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Validator checks requests against the contracts of a registry.
type Validator struct {
	reg *catalog.Registry
}

// New creates a validator. A nil registry uses catalog.Default().
func New(reg *catalog.Registry) *Validator {
	if reg == nil {
		reg = catalog.Default()
	}
	return &Validator{reg: reg}
}

// Validate checks req against its operation contract and materializes
// declared defaults. The first violation is returned as *core.OperationError.
func (v *Validator) Validate(req core.Request) (*core.ValidatedRequest, error) {
	contract, err := v.reg.Get(req.Operation)
	if err != nil {
		oe, _ := core.AsOperationError(err)
		return nil, oe.WithRequest(req.Operation, req.ID)
	}
	op := contract.Name

	for _, name := range sortedKeys(req.Params) {
		if _, ok := contract.Param(name); !ok {
			return nil, core.UnknownParameter(op, name).WithRequest(string(op), req.ID)
		}
	}

	params := make(map[string]core.Value, len(contract.Params))
	for i := range contract.Params {
		spec := &contract.Params[i]
		raw, present := req.Params[spec.Name]
		if present && raw == nil {
			present = false
		}
		if !present {
			if spec.Required {
				return nil, core.MissingParameter(op, spec.Name).WithRequest(string(op), req.ID)
			}
			if spec.Default != nil {
				params[spec.Name] = *spec.Default
			}
			continue
		}

		val, oe := coerce(op, spec, raw)
		if oe != nil {
			return nil, oe.WithRequest(string(op), req.ID)
		}
		params[spec.Name] = val
	}

	return core.NewValidatedRequest(req.ID, contract, params), nil
}

// ValidateAll validates every request and joins all failures. The returned
// slice is nil when any request fails.
func (v *Validator) ValidateAll(reqs []core.Request) ([]*core.ValidatedRequest, error) {
	out := make([]*core.ValidatedRequest, 0, len(reqs))
	var errs []error
	for _, r := range reqs {
		vr, err := v.Validate(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, vr)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func coerce(op core.Operation, spec *core.ParameterSpec, raw any) (core.Value, *core.OperationError) {
	switch spec.Type {
	case core.TypeNumber:
		f, ok := toNumber(raw)
		if !ok {
			return core.Value{}, core.TypeMismatch(op, spec.Name, "number", describe(raw))
		}
		return core.NumberValue(f), nil

	case core.TypeStringArray:
		ss, ok := toStrings(raw)
		if !ok {
			return core.Value{}, core.TypeMismatch(op, spec.Name, "array of strings", describe(raw))
		}
		if spec.Required && len(ss) == 0 {
			return core.Value{}, &core.OperationError{
				Kind:      core.KindMissingParameter,
				Operation: string(op),
				Param:     spec.Name,
				Message:   fmt.Sprintf("%s must name at least one value", spec.Name),
			}
		}
		for _, s := range ss {
			if spec.IsReference() && strings.TrimSpace(s) == "" {
				return core.Value{}, blankReference(op, spec)
			}
			if !spec.Allows(s) {
				return core.Value{}, core.TypeMismatch(op, spec.Name, enumDesc(spec), fmt.Sprintf("%q", s))
			}
		}
		return core.StringsValue(ss), nil

	default:
		s, ok := raw.(string)
		if !ok {
			return core.Value{}, core.TypeMismatch(op, spec.Name, "string", describe(raw))
		}
		if spec.IsReference() && strings.TrimSpace(s) == "" {
			return core.Value{}, blankReference(op, spec)
		}
		if !spec.Allows(s) {
			return core.Value{}, core.TypeMismatch(op, spec.Name, enumDesc(spec), fmt.Sprintf("%q", s))
		}
		return core.StringValue(s), nil
	}
}

// blankReference reports a reference parameter that names no layer, whether
// it is a scalar or an element of an array.
func blankReference(op core.Operation, spec *core.ParameterSpec) *core.OperationError {
	return &core.OperationError{
		Kind:      core.KindMissingParameter,
		Operation: string(op),
		Param:     spec.Name,
		Message:   fmt.Sprintf("%s contains an empty layer identifier", spec.Name),
	}
}

func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool, string:
		return 0, false
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toStrings(raw any) ([]string, bool) {
	switch a := raw.(type) {
	case []string:
		return a, true
	case []any:
		out := make([]string, len(a))
		for i, e := range a {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func describe(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toNumber(raw); ok {
		return "number"
	}
	return fmt.Sprintf("%T", raw)
}

func enumDesc(spec *core.ParameterSpec) string {
	return "one of [" + strings.Join(spec.Enum, ", ") + "]"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
