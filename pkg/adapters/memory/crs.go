package memory

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

const (
	crsWGS84    = "EPSG:4326"
	crsMercator = "EPSG:3857"
)

func normalizeCRS(s string) string { return core.NormalizeCRS(s) }

// transform returns a function moving geometries from one CRS to another.
// Only WGS84 and web mercator are known.
func transform(from, to string) (func(orb.Geometry) orb.Geometry, error) {
	from, to = normalizeCRS(from), normalizeCRS(to)
	var proj orb.Projection
	switch {
	case from == to:
		return func(g orb.Geometry) orb.Geometry { return g }, nil
	case from == crsWGS84 && to == crsMercator:
		proj = project.WGS84.ToMercator
	case from == crsMercator && to == crsWGS84:
		proj = project.Mercator.ToWGS84
	default:
		return nil, adapter.Unsupported("reprojection from %s to %s", from, to)
	}
	return func(g orb.Geometry) orb.Geometry {
		if g == nil {
			return nil
		}
		return project.Geometry(orb.Clone(g), proj)
	}, nil
}
