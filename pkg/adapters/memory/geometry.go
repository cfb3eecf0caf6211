package memory

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// checkValid rejects collections holding invalid polygons.
func checkValid(ds *dataset) error {
	for i, f := range ds.fc.Features {
		if reason := invalidReason(f.Geometry); reason != "" {
			return adapter.InvalidGeometry("feature %d of layer %s: %s", i, ds.id, reason)
		}
	}
	return nil
}

// invalidReason returns why g is invalid, or "" for valid geometries.
// Only polygonal geometries are checked.
func invalidReason(g orb.Geometry) string {
	switch g := g.(type) {
	case orb.Polygon:
		return polygonReason(g)
	case orb.MultiPolygon:
		for i, p := range g {
			if r := polygonReason(p); r != "" {
				return fmt.Sprintf("polygon %d: %s", i, r)
			}
		}
	case orb.Collection:
		for _, c := range g {
			if r := invalidReason(c); r != "" {
				return r
			}
		}
	}
	return ""
}

func polygonReason(p orb.Polygon) string {
	if len(p) == 0 {
		return "empty polygon"
	}
	for i, r := range p {
		switch {
		case len(r) < 4:
			return fmt.Sprintf("ring %d has fewer than 4 points", i)
		case !r.Closed():
			return fmt.Sprintf("ring %d is not closed", i)
		case planar.Area(r) == 0:
			return fmt.Sprintf("ring %d has no area", i)
		case selfIntersects(r):
			return fmt.Sprintf("ring %d self-intersects", i)
		}
	}
	return ""
}

// selfIntersects reports whether two non-adjacent edges of a closed ring cross.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// fix repairs a geometry: rings are closed, repeated points dropped and
// degenerate rings removed. A self-intersecting ring is replaced by its
// convex hull. The result is nil when nothing valid remains.
func fix(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Polygon:
		if p := fixPolygon(g); p != nil {
			return p
		}
		return nil
	case orb.MultiPolygon:
		var out orb.MultiPolygon
		for _, p := range g {
			if fp := fixPolygon(p); fp != nil {
				out = append(out, fp)
			}
		}
		switch len(out) {
		case 0:
			return nil
		case 1:
			return out[0]
		}
		return out
	case orb.LineString:
		ls := dedupe(g)
		if len(ls) < 2 {
			return nil
		}
		return orb.LineString(ls)
	case orb.Collection:
		var out orb.Collection
		for _, c := range g {
			if fc := fix(c); fc != nil {
				out = append(out, fc)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return g
}

func fixPolygon(p orb.Polygon) orb.Polygon {
	var out orb.Polygon
	for i, r := range p {
		fr := fixRing(r)
		if fr == nil {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, fr)
	}
	return out
}

func fixRing(r orb.Ring) orb.Ring {
	pts := dedupe(r)
	if len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil
	}
	ring := append(orb.Ring(pts), pts[0])
	if selfIntersects(ring) {
		ring = hull(pts)
	}
	if len(ring) < 4 || planar.Area(ring) == 0 {
		return nil
	}
	return ring
}

func dedupe(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(pts))
	for _, p := range pts {
		if len(out) == 0 || !out[len(out)-1].Equal(p) {
			out = append(out, p)
		}
	}
	return out
}

// hull returns the closed, counter-clockwise convex hull of pts (monotone chain).
func hull(pts []orb.Point) orb.Ring {
	ps := append([]orb.Point(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i][0] != ps[j][0] {
			return ps[i][0] < ps[j][0]
		}
		return ps[i][1] < ps[j][1]
	})
	var lower, upper []orb.Point
	for _, p := range ps {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(ps) - 1; i >= 0; i-- {
		p := ps[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	ring := append(orb.Ring(lower[:len(lower)-1]), upper[:len(upper)-1]...)
	if len(ring) == 0 {
		return nil
	}
	return append(ring, ring[0])
}

// circle approximates a disc with 4*segments vertices.
func circle(c orb.Point, radius float64, segments int) orb.Polygon {
	n := 4 * segments
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{c[0] + radius*math.Cos(a), c[1] + radius*math.Sin(a)})
	}
	return orb.Polygon{append(ring, ring[0])}
}

// isRectangle reports whether g is a single-ring polygon equal to its bound.
func isRectangle(g orb.Geometry) (orb.Bound, bool) {
	p, ok := g.(orb.Polygon)
	if !ok || len(p) != 1 {
		return orb.Bound{}, false
	}
	b := p.Bound()
	if b.Min[0] == b.Max[0] || b.Min[1] == b.Max[1] {
		return b, false
	}
	for _, pt := range p[0] {
		onX := pt[0] == b.Min[0] || pt[0] == b.Max[0]
		onY := pt[1] == b.Min[1] || pt[1] == b.Max[1]
		if !onX || !onY {
			return b, false
		}
	}
	return b, math.Abs(planar.Area(p)-area(b)) <= 1e-9*math.Max(1, area(b))
}

func area(b orb.Bound) float64 {
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

// contains reports whether polygonal g contains point p.
func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	}
	return false
}

func isPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// points returns the points of a point or multipoint geometry.
func points(g orb.Geometry) ([]orb.Point, bool) {
	switch g := g.(type) {
	case orb.Point:
		return []orb.Point{g}, true
	case orb.MultiPoint:
		return g, true
	}
	return nil, false
}

// isEmpty reports geometries with nothing left in them.
func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) < 2
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Ring:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	}
	return false
}

// collect combines geometries into one. A single geometry is returned
// unchanged; one family folds into its multi type; anything else becomes a
// collection.
func collect(gs []orb.Geometry) orb.Geometry {
	var nonNil []orb.Geometry
	for _, g := range gs {
		if g != nil {
			nonNil = append(nonNil, g)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	var (
		mp    orb.MultiPoint
		mls   orb.MultiLineString
		mpoly orb.MultiPolygon
		kinds = map[string]bool{}
	)
	for _, g := range nonNil {
		switch g := g.(type) {
		case orb.Point:
			mp, kinds["point"] = append(mp, g), true
		case orb.MultiPoint:
			mp, kinds["point"] = append(mp, g...), true
		case orb.LineString:
			mls, kinds["line"] = append(mls, g), true
		case orb.MultiLineString:
			mls, kinds["line"] = append(mls, g...), true
		case orb.Polygon:
			mpoly, kinds["polygon"] = append(mpoly, g), true
		case orb.MultiPolygon:
			mpoly, kinds["polygon"] = append(mpoly, g...), true
		default:
			kinds["other"] = true
		}
	}
	if len(kinds) == 1 {
		switch {
		case kinds["point"]:
			return mp
		case kinds["line"]:
			return mls
		case kinds["polygon"]:
			return mpoly
		}
	}
	return orb.Collection(nonNil)
}

// featureGeometries returns the geometries of fs in order.
func featureGeometries(fs []*geojson.Feature) []orb.Geometry {
	out := make([]orb.Geometry, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Geometry)
	}
	return out
}
