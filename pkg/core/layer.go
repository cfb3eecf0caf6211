package core

import "strings"

// LayerKind distinguishes vector from raster layers.
type LayerKind string

// Layer kinds. LayerKindAny is only used in contracts, never on a concrete layer.
const (
	LayerKindVector LayerKind = "vector"
	LayerKindRaster LayerKind = "raster"
	LayerKindAny    LayerKind = "any"
)

// Accepts reports whether a layer of kind k can be supplied where want is expected.
func (want LayerKind) Accepts(k LayerKind) bool {
	return want == LayerKindAny || want == "" || want == k
}

// GeometryType is the geometry type reported for a vector layer.
type GeometryType string

// Geometry types as reported by engines.
const (
	GeometryUnknown         GeometryType = "Unknown"
	GeometryNone            GeometryType = "None"
	GeometryPoint           GeometryType = "Point"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryLineString      GeometryType = "LineString"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
	GeometryCollection      GeometryType = "GeometryCollection"
)

// GeometryFamily groups single and multi geometry types.
type GeometryFamily string

// Geometry families.
const (
	FamilyUnknown GeometryFamily = "unknown"
	FamilyNone    GeometryFamily = "none"
	FamilyPoint   GeometryFamily = "point"
	FamilyLine    GeometryFamily = "line"
	FamilyPolygon GeometryFamily = "polygon"
	FamilyMixed   GeometryFamily = "mixed"
)

// ParseGeometryType normalizes engine spellings ("POINT", "ST_MultiPolygon",
// "multipolygon") to a GeometryType.
func ParseGeometryType(s string) GeometryType {
	n := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "ST_"), "st_"))
	for _, suffix := range []string{"zm", "z", "m"} {
		if trimmed, ok := strings.CutSuffix(n, suffix); ok {
			n = trimmed
			break
		}
	}
	switch n {
	case "point":
		return GeometryPoint
	case "multipoint":
		return GeometryMultiPoint
	case "linestring", "line":
		return GeometryLineString
	case "multilinestring":
		return GeometryMultiLineString
	case "polygon":
		return GeometryPolygon
	case "multipolygon":
		return GeometryMultiPolygon
	case "geometrycollection", "collection":
		return GeometryCollection
	case "none", "nogeometry", "":
		if s == "" {
			return GeometryUnknown
		}
		return GeometryNone
	default:
		return GeometryUnknown
	}
}

// Family folds a geometry type into its family.
func (g GeometryType) Family() GeometryFamily {
	switch g {
	case GeometryPoint, GeometryMultiPoint:
		return FamilyPoint
	case GeometryLineString, GeometryMultiLineString:
		return FamilyLine
	case GeometryPolygon, GeometryMultiPolygon:
		return FamilyPolygon
	case GeometryNone:
		return FamilyNone
	case GeometryCollection:
		return FamilyMixed
	default:
		return FamilyUnknown
	}
}

// Layer is an opaque handle to data owned by a geoprocessing engine.
// The dispatch layer only threads identifiers and metadata through; it never
// reads features or pixels.
type Layer struct {
	ID           string
	Name         string
	Kind         LayerKind
	GeometryType GeometryType
	CRS          string
	FeatureCount int64
	BandCount    int
	Fields       []string
	// Location is engine specific: a table name, an object key, or empty for
	// in-process layers.
	Location string
	Metadata map[string]string
}

// Clone returns a deep copy so callers can't mutate a stored handle.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	c := *l
	if l.Fields != nil {
		c.Fields = append([]string(nil), l.Fields...)
	}
	if l.Metadata != nil {
		c.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// FoldGeometryTypes combines the geometry types found in one layer. Single
// and multi types of one family fold into the multi type; different
// families yield GeometryCollection. No input yields GeometryUnknown.
func FoldGeometryTypes(types ...GeometryType) GeometryType {
	var out GeometryType
	for _, gt := range types {
		switch {
		case out == "":
			out = gt
		case out == gt:
		case out.Family() == gt.Family():
			out = gt.Multi()
		default:
			return GeometryCollection
		}
	}
	if out == "" {
		return GeometryUnknown
	}
	return out
}

// Multi returns the multi variant of a single geometry type.
func (g GeometryType) Multi() GeometryType {
	switch g.Family() {
	case FamilyPoint:
		return GeometryMultiPoint
	case FamilyLine:
		return GeometryMultiLineString
	case FamilyPolygon:
		return GeometryMultiPolygon
	}
	return g
}
