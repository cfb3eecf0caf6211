package starlark

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"go.starlark.net/starlark"
)

// builtins are shared by every evaluation. They are frozen once at init.
var builtins = func() starlark.StringDict {
	d := starlark.StringDict{
		"make_point": starlark.NewBuiltin("make_point", makePoint),
		"centroid":   starlark.NewBuiltin("centroid", centroid),
		"translate":  starlark.NewBuiltin("translate", translate),
		"bounds":     starlark.NewBuiltin("bounds", bounds),
		"area":       starlark.NewBuiltin("area", measure(planar.Area)),
		"length":     starlark.NewBuiltin("length", measure(planar.Length)),
		"to_real":    starlark.NewBuiltin("to_real", toReal),
		"to_int":     starlark.NewBuiltin("to_int", toInt),
		"to_string":  starlark.NewBuiltin("to_string", toString),
		"upper":      starlark.NewBuiltin("upper", mapString(strings.ToUpper)),
		"lower":      starlark.NewBuiltin("lower", mapString(strings.ToLower)),
		"coalesce":   starlark.NewBuiltin("coalesce", coalesce),
		"round":      starlark.NewBuiltin("round", round),
	}
	d.Freeze()
	return d
}()

// Builtins returns the names of the functions available to expressions, sorted.
func Builtins() []string {
	return builtins.Keys()
}

func makePoint(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
		return nil, err
	}
	fx, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: x must be a number", b.Name())
	}
	fy, ok := starlark.AsFloat(y)
	if !ok {
		return nil, fmt.Errorf("%s: y must be a number", b.Name())
	}
	return NewGeometry(orb.Point{fx, fy}), nil
}

func centroid(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	g, err := asGeometry(b.Name(), v)
	if err != nil {
		return nil, err
	}
	c, _ := planar.CentroidArea(g)
	return NewGeometry(c), nil
}

func translate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var dx, dy starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &v, &dx, &dy); err != nil {
		return nil, err
	}
	g, err := asGeometry(b.Name(), v)
	if err != nil {
		return nil, err
	}
	fx, okx := starlark.AsFloat(dx)
	fy, oky := starlark.AsFloat(dy)
	if !okx || !oky {
		return nil, fmt.Errorf("%s: offsets must be numbers", b.Name())
	}
	moved := project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		return orb.Point{p[0] + fx, p[1] + fy}
	})
	return NewGeometry(moved), nil
}

func bounds(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	g, err := asGeometry(b.Name(), v)
	if err != nil {
		return nil, err
	}
	return NewGeometry(g.Bound().ToPolygon()), nil
}

func measure(fn func(orb.Geometry) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		g, err := asGeometry(b.Name(), v)
		if err != nil {
			return nil, err
		}
		return starlark.Float(fn(g)), nil
	}
}

func toReal(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if f, ok := starlark.AsFloat(v); ok {
		return starlark.Float(f), nil
	}
	if s, ok := starlark.AsString(v); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return starlark.None, nil
		}
		return starlark.Float(f), nil
	}
	return starlark.None, nil
}

func toInt(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if f, ok := starlark.AsFloat(v); ok {
		return starlark.MakeInt64(int64(math.Trunc(f))), nil
	}
	if s, ok := starlark.AsString(v); ok {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return starlark.None, nil
		}
		return starlark.MakeInt64(i), nil
	}
	return starlark.None, nil
}

func toString(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if s, ok := starlark.AsString(v); ok {
		return starlark.String(s), nil
	}
	if v == starlark.None {
		return starlark.None, nil
	}
	return starlark.String(v.String()), nil
}

func mapString(fn func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		s, ok := starlark.AsString(v)
		if !ok {
			return starlark.None, nil
		}
		return starlark.String(fn(s)), nil
	}
}

func coalesce(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	for _, v := range args {
		if v != starlark.None {
			return v, nil
		}
	}
	return starlark.None, nil
}

func round(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	places := 0
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v, &places); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return nil, fmt.Errorf("%s: want number, got %s", b.Name(), v.Type())
	}
	scale := math.Pow(10, float64(places))
	r := math.Round(f*scale) / scale
	if places <= 0 {
		return starlark.MakeInt64(int64(r)), nil
	}
	return starlark.Float(r), nil
}
