package starlark

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var fileOptions = &syntax.FileOptions{}

// Expression is a checked per-feature expression. It holds no parsed state,
// so one Expression may be evaluated from several goroutines.
type Expression struct {
	Source string
	code   string
}

// Compile translates src and checks its syntax.
func Compile(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	code := Translate(src)
	if _, err := fileOptions.ParseExpr("expression", code, 0); err != nil {
		return nil, &EvalError{Feature: -1, Expr: src, Message: err.Error()}
	}
	return &Expression{Source: src, code: code}, nil
}

// Code returns the translated Starlark source.
func (x *Expression) Code() string { return x.code }

// Feature is the evaluation input: one feature's attributes and geometry.
type Feature struct {
	Index      int
	Attributes map[string]any
	Geometry   orb.Geometry
}

// Evaluator evaluates expressions for one operation call. Every feature gets
// a fresh thread so the step limit applies per feature.
type Evaluator struct {
	ctx      context.Context
	name     string
	MaxSteps uint64
}

// NewEvaluator creates an evaluator cancelled together with ctx.
func NewEvaluator(ctx context.Context, name string) *Evaluator {
	return &Evaluator{ctx: ctx, name: name, MaxSteps: DefaultMaxSteps}
}

// Eval evaluates x for one feature.
func (ev *Evaluator) Eval(x *Expression, f Feature) (starlark.Value, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, &EvalError{Feature: f.Index, Expr: x.Source, Message: err.Error()}
	}
	env, err := globals(f)
	if err != nil {
		return nil, &EvalError{Feature: f.Index, Expr: x.Source, Message: err.Error()}
	}
	thread, stop := newThread(ev.ctx, ev.name, ev.MaxSteps)
	defer stop()
	v, err := starlark.EvalOptions(fileOptions, thread, "expression", x.code, env)
	if err != nil {
		return nil, &EvalError{Feature: f.Index, Expr: x.Source, Message: err.Error()}
	}
	return v, nil
}

// Value evaluates x and converts the result to an attribute value.
func (ev *Evaluator) Value(x *Expression, f Feature) (any, error) {
	v, err := ev.Eval(x, f)
	if err != nil {
		return nil, err
	}
	out, err := ToGo(v)
	if err != nil {
		return nil, &EvalError{Feature: f.Index, Expr: x.Source, Message: err.Error()}
	}
	return out, nil
}

// Geometry evaluates x and requires a geometry (or None) result.
func (ev *Evaluator) Geometry(x *Expression, f Feature) (orb.Geometry, error) {
	v, err := ev.Eval(x, f)
	if err != nil {
		return nil, err
	}
	switch g := v.(type) {
	case *Geometry:
		return g.G, nil
	case starlark.NoneType:
		return nil, nil
	}
	return nil, &EvalError{Feature: f.Index, Expr: x.Source, Message: fmt.Sprintf("expression returned %s, want geometry", v.Type())}
}

// globals builds the environment for one feature: the builtins, the
// attributes dict, the geometry, and every attribute whose name is a valid
// identifier not shadowing a builtin.
func globals(f Feature) (starlark.StringDict, error) {
	env := make(starlark.StringDict, len(builtins)+len(f.Attributes)+3)
	attrs := starlark.NewDict(len(f.Attributes))
	for name, raw := range f.Attributes {
		v, err := FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		if err := attrs.SetKey(starlark.String(name), v); err != nil {
			return nil, err
		}
		if isIdentifier(name) {
			env[name] = v
		}
	}
	for name, v := range builtins {
		env[name] = v
	}
	env["attributes"] = attrs
	env["geometry"] = NewGeometry(f.Geometry)
	env["feature_id"] = starlark.MakeInt(f.Index)
	return env, nil
}

func isIdentifier(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		if !isIdent(r) {
			return false
		}
	}
	_, reserved := reservedWords[s]
	return !reserved
}

var reservedWords = map[string]struct{}{
	"and": {}, "as": {}, "assert": {}, "async": {}, "await": {}, "break": {}, "class": {},
	"continue": {}, "def": {}, "del": {}, "elif": {}, "else": {}, "except": {}, "finally": {},
	"for": {}, "from": {}, "global": {}, "if": {}, "import": {}, "in": {}, "is": {},
	"lambda": {}, "load": {}, "nonlocal": {}, "not": {}, "or": {}, "pass": {}, "raise": {},
	"return": {}, "try": {}, "while": {}, "with": {}, "yield": {},
}

// EvalError is an expression error. Feature is the feature index, or -1 for
// errors found at compile time.
type EvalError struct {
	Feature int
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	if e.Feature >= 0 {
		return fmt.Sprintf("feature %d: error evaluating %q: %s", e.Feature, e.Expr, e.Message)
	}
	return fmt.Sprintf("error evaluating %q: %s", e.Expr, e.Message)
}
