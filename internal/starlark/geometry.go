package starlark

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.starlark.net/starlark"
)

// Geometry wraps an orb geometry as an immutable Starlark value.
// Attributes: type, area, length, x, y, xmin, ymin, xmax, ymax.
type Geometry struct {
	G orb.Geometry
}

var (
	_ starlark.Value    = (*Geometry)(nil)
	_ starlark.HasAttrs = (*Geometry)(nil)
)

// NewGeometry wraps g. A nil geometry is allowed and reports type "None".
func NewGeometry(g orb.Geometry) *Geometry { return &Geometry{G: g} }

func (g *Geometry) String() string {
	if g.G == nil {
		return "<geometry None>"
	}
	b := g.G.Bound()
	return fmt.Sprintf("<geometry %s [%g %g, %g %g]>", g.G.GeoJSONType(), b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// Type returns the Starlark type name.
func (g *Geometry) Type() string { return "geometry" }

// Freeze is a no-op: geometries are never mutated in place.
func (g *Geometry) Freeze() {}

// Truth reports whether a geometry is present.
func (g *Geometry) Truth() starlark.Bool { return g.G != nil }

// Hash fails: geometries can't be dict keys.
func (g *Geometry) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: geometry")
}

// Attr implements starlark.HasAttrs.
func (g *Geometry) Attr(name string) (starlark.Value, error) {
	if g.G == nil {
		if name == "type" {
			return starlark.String("None"), nil
		}
		return starlark.None, nil
	}
	b := g.G.Bound()
	switch name {
	case "type":
		return starlark.String(g.G.GeoJSONType()), nil
	case "area":
		return starlark.Float(planar.Area(g.G)), nil
	case "length":
		return starlark.Float(planar.Length(g.G)), nil
	case "x", "y":
		c, _ := planar.CentroidArea(g.G)
		if name == "x" {
			return starlark.Float(c[0]), nil
		}
		return starlark.Float(c[1]), nil
	case "xmin":
		return starlark.Float(b.Min[0]), nil
	case "ymin":
		return starlark.Float(b.Min[1]), nil
	case "xmax":
		return starlark.Float(b.Max[0]), nil
	case "ymax":
		return starlark.Float(b.Max[1]), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (g *Geometry) AttrNames() []string {
	return []string{"area", "length", "type", "x", "xmax", "xmin", "y", "ymax", "ymin"}
}

// asGeometry unpacks a builtin argument.
func asGeometry(fn string, v starlark.Value) (orb.Geometry, error) {
	g, ok := v.(*Geometry)
	if !ok {
		return nil, fmt.Errorf("%s: want geometry, got %s", fn, v.Type())
	}
	if g.G == nil {
		return nil, fmt.Errorf("%s: geometry is None", fn)
	}
	return g.G, nil
}
