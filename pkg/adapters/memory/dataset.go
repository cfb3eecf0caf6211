package memory

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// dataset is the engine-side data behind one layer.
type dataset struct {
	id     string
	name   string
	kind   core.LayerKind
	crs    string
	gtype  core.GeometryType
	fc     *geojson.FeatureCollection
	raster *Raster
}

// Raster is the raster metadata the memory engine tracks. Pixels are not held.
type Raster struct {
	CRS        string    `json:"crs"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Bands      int       `json:"bands"`
	Bound      orb.Bound `json:"-"`
	Resampling string    `json:"resampling,omitempty"`
}

// newVector builds a vector dataset. fallback is the geometry type reported
// when the collection is empty.
func newVector(id, crs string, fc *geojson.FeatureCollection, fallback core.GeometryType) *dataset {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	gtype := geojsonio.GeometryType(fc)
	if gtype == core.GeometryUnknown && fallback != "" {
		gtype = fallback
	}
	return &dataset{id: id, kind: core.LayerKindVector, crs: crs, gtype: gtype, fc: fc}
}

func (ds *dataset) layer() *core.Layer {
	l := &core.Layer{
		ID:       ds.id,
		Name:     ds.name,
		Kind:     ds.kind,
		CRS:      ds.crs,
		Metadata: map[string]string{"engine": "memory"},
	}
	switch ds.kind {
	case core.LayerKindVector:
		l.GeometryType = ds.gtype
		l.FeatureCount = int64(len(ds.fc.Features))
		l.Fields = geojsonio.FieldNames(ds.fc)
	case core.LayerKindRaster:
		l.BandCount = ds.raster.Bands
		l.Metadata["width"] = strconv.Itoa(ds.raster.Width)
		l.Metadata["height"] = strconv.Itoa(ds.raster.Height)
		if ds.raster.Resampling != "" {
			l.Metadata["resampling"] = ds.raster.Resampling
		}
	}
	return l
}

// cloneFeature deep-copies geometry and properties.
func cloneFeature(f *geojson.Feature) *geojson.Feature {
	var g orb.Geometry
	if f.Geometry != nil {
		g = orb.Clone(f.Geometry)
	}
	c := geojson.NewFeature(g)
	c.ID = f.ID
	c.Properties = f.Properties.Clone()
	if c.Properties == nil {
		c.Properties = geojson.Properties{}
	}
	return c
}

func cloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	for _, f := range fc.Features {
		out.Append(cloneFeature(f))
	}
	return out
}

// withGeometry copies f's properties onto a new feature with geometry g.
func withGeometry(f *geojson.Feature, g orb.Geometry) *geojson.Feature {
	c := geojson.NewFeature(g)
	c.ID = f.ID
	c.Properties = f.Properties.Clone()
	if c.Properties == nil {
		c.Properties = geojson.Properties{}
	}
	return c
}
