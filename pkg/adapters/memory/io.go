package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// rasterFile is the on-disk raster descriptor: {"type": "Raster", ...}.
type rasterFile struct {
	Type   string    `json:"type"`
	CRS    string    `json:"crs"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Bands  int       `json:"bands"`
	BBox   []float64 `json:"bbox,omitempty"`
}

// Import loads a .geojson feature collection or a raster descriptor.
func (e *Engine) Import(ctx context.Context, id, path string) (*core.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
	default:
		return nil, adapter.Unsupported("import of %s files", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	var ds *dataset
	switch probe.Type {
	case "Raster":
		var rf rasterFile
		if err := json.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("invalid raster descriptor %s: %w", path, err)
		}
		r := Raster{CRS: normalizeCRS(rf.CRS), Width: rf.Width, Height: rf.Height, Bands: rf.Bands}
		if len(rf.BBox) == 4 {
			r.Bound = orb.Bound{Min: orb.Point{rf.BBox[0], rf.BBox[1]}, Max: orb.Point{rf.BBox[2], rf.BBox[3]}}
		}
		if r.CRS == "" {
			r.CRS = core.DefaultCRS
		}
		ds = &dataset{kind: core.LayerKindRaster, crs: r.CRS, raster: &r}
	case "FeatureCollection":
		fc, err := geojsonio.Read(path)
		if err != nil {
			return nil, err
		}
		ds = newVector("", geojsonio.CollectionCRS(fc), fc, core.GeometryUnknown)
	default:
		return nil, adapter.Unsupported("import of GeoJSON type %q", probe.Type)
	}

	ds.id = id
	ds.name = geojsonio.LayerName(path)
	e.logger.Debug("imported", "layer", id, "path", path, "kind", ds.kind)
	return e.store(ds), nil
}

// Export writes a layer as GeoJSON (vector) or a raster descriptor. A
// directory path gets a file named after the layer.
func (e *Engine) Export(ctx context.Context, l *core.Layer, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.RLock()
	ds, ok := e.datasets[l.ID]
	e.mu.RUnlock()
	if !ok {
		return "", adapter.NotFound(l.ID)
	}

	ext := ".geojson"
	if ds.kind == core.LayerKindRaster {
		ext = ".json"
	}
	path = geojsonio.OutputPath(path, l.ID, ext)

	var data []byte
	var err error
	switch ds.kind {
	case core.LayerKindRaster:
		rf := rasterFile{Type: "Raster", CRS: ds.raster.CRS, Width: ds.raster.Width, Height: ds.raster.Height, Bands: ds.raster.Bands}
		if !ds.raster.Bound.IsZero() {
			b := ds.raster.Bound
			rf.BBox = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		}
		data, err = json.MarshalIndent(rf, "", "  ")
	default:
		fc := cloneCollection(ds.fc)
		geojsonio.SetCRS(fc, ds.crs)
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode layer %s: %w", l.ID, err)
	}

	if err := geojsonio.WriteBytes(path, data); err != nil {
		return "", err
	}
	return path, nil
}
