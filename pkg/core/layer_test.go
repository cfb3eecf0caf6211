package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGeometryType(t *testing.T) {
	tests := map[string]GeometryType{
		"POINT":           GeometryPoint,
		"ST_MultiPolygon": GeometryMultiPolygon,
		"multipolygon":    GeometryMultiPolygon,
		"LineStringZ":     GeometryLineString,
		"PolygonZM":       GeometryPolygon,
		"None":            GeometryNone,
		"":                GeometryUnknown,
		"Curve":           GeometryUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseGeometryType(in), in)
	}
}

func TestGeometryType_Family(t *testing.T) {
	assert.Equal(t, FamilyPoint, GeometryMultiPoint.Family())
	assert.Equal(t, GeometryPoint.Family(), GeometryMultiPoint.Family())
	assert.Equal(t, FamilyPolygon, GeometryPolygon.Family())
	assert.NotEqual(t, GeometryPoint.Family(), GeometryPolygon.Family())
	assert.Equal(t, FamilyMixed, GeometryCollection.Family())
}

func TestFoldGeometryTypes(t *testing.T) {
	assert.Equal(t, GeometryUnknown, FoldGeometryTypes())
	assert.Equal(t, GeometryPoint, FoldGeometryTypes(GeometryPoint, GeometryPoint))
	assert.Equal(t, GeometryMultiPolygon, FoldGeometryTypes(GeometryPolygon, GeometryMultiPolygon, GeometryPolygon))
	assert.Equal(t, GeometryCollection, FoldGeometryTypes(GeometryPoint, GeometryLineString))
	assert.Equal(t, GeometryNone, FoldGeometryTypes(GeometryNone))
}

func TestLayerKind_Accepts(t *testing.T) {
	assert.True(t, LayerKindVector.Accepts(LayerKindVector))
	assert.False(t, LayerKindVector.Accepts(LayerKindRaster))
	assert.True(t, LayerKindAny.Accepts(LayerKindRaster))
}

func TestLayer_Clone(t *testing.T) {
	l := &Layer{ID: "a", Fields: []string{"name"}, Metadata: map[string]string{"k": "v"}}
	c := l.Clone()
	c.Fields[0] = "changed"
	c.Metadata["k"] = "changed"

	assert.Equal(t, "name", l.Fields[0])
	assert.Equal(t, "v", l.Metadata["k"])
	assert.Nil(t, (*Layer)(nil).Clone())
}

func TestOperation_AlgorithmID(t *testing.T) {
	assert.Equal(t, "native:buffer", OpBuffer.AlgorithmID())
	assert.Equal(t, "native:mergevectorlayers", OpMergeVectorLayers.AlgorithmID())
	assert.Equal(t, "gdal:warpreproject", OpWarpReproject.AlgorithmID())
	assert.Equal(t, "qgis", OpClip.Provider())
}

func TestValue(t *testing.T) {
	assert.Equal(t, "10", NumberValue(10).String())
	assert.Equal(t, []string{"a"}, StringValue("a").Strings())
	assert.True(t, StringsValue([]string{"a", "b"}).Equal(StringsValue([]string{"a", "b"})))
	assert.False(t, StringValue("1").Equal(NumberValue(1)))

	src := []string{"x"}
	v := StringsValue(src)
	src[0] = "y"
	assert.Equal(t, []string{"x"}, v.Strings(), "StringsValue must copy its input")
}

func TestNormalizeCRS(t *testing.T) {
	tests := map[string]string{
		"epsg:4326":                     "EPSG:4326",
		"urn:ogc:def:crs:EPSG::3857":    "EPSG:3857",
		"urn:ogc:def:crs:OGC:1.3:CRS84": "EPSG:4326",
		"EPSG:900913":                   "EPSG:3857",
		" EPSG:32633 ":                  "EPSG:32633",
		"":                              "",
		"+proj=longlat":                 "+proj=longlat",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeCRS(in), in)
	}

	code, ok := EPSGCode("epsg:3857")
	assert.True(t, ok)
	assert.Equal(t, 3857, code)
	_, ok = EPSGCode("+proj=longlat")
	assert.False(t, ok)
}
