// Package geojsonio holds the GeoJSON file handling shared by engines that
// import and export layers as GeoJSON.
package geojsonio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// CollectionCRS reads the legacy "crs" member of a feature collection.
// RFC 7946 collections without one are WGS84.
func CollectionCRS(fc *geojson.FeatureCollection) string {
	member, ok := fc.ExtraMembers["crs"].(map[string]any)
	if !ok {
		return core.DefaultCRS
	}
	props, ok := member["properties"].(map[string]any)
	if !ok {
		return core.DefaultCRS
	}
	name, _ := props["name"].(string)
	if crs := core.NormalizeCRS(name); crs != "" {
		return crs
	}
	return core.DefaultCRS
}

// SetCRS records crs as the "crs" member unless it is WGS84.
func SetCRS(fc *geojson.FeatureCollection, crs string) {
	crs = core.NormalizeCRS(crs)
	if crs == "" || crs == core.DefaultCRS {
		delete(fc.ExtraMembers, "crs")
		return
	}
	if fc.ExtraMembers == nil {
		fc.ExtraMembers = geojson.Properties{}
	}
	fc.ExtraMembers["crs"] = map[string]any{"type": "name", "properties": map[string]any{"name": crs}}
}

// Read loads a feature collection from a file. Features without properties
// get an empty map.
func Read(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON in %s: %w", path, err)
	}
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}
	return fc, nil
}

// GeometryType folds the feature geometry types of a collection. Features
// without geometry count as None.
func GeometryType(fc *geojson.FeatureCollection) core.GeometryType {
	types := make([]core.GeometryType, 0, len(fc.Features))
	for _, f := range fc.Features {
		gt := core.GeometryNone
		if f.Geometry != nil {
			gt = core.ParseGeometryType(f.Geometry.GeoJSONType())
		}
		types = append(types, gt)
	}
	return core.FoldGeometryTypes(types...)
}

// FieldNames returns the sorted union of property names.
func FieldNames(fc *geojson.FeatureCollection) []string {
	seen := make(map[string]struct{})
	for _, f := range fc.Features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LayerName derives a layer name from a file path.
func LayerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// OutputPath resolves an export target. A directory, or a path ending in a
// separator, gets a file named after the layer.
func OutputPath(path, id, ext string) string {
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || strings.HasSuffix(path, string(os.PathSeparator)) {
		return filepath.Join(path, id+ext)
	}
	return path
}

// Write encodes v as JSON into path, creating parent directories.
func Write(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteBytes(path, data)
}

// WriteBytes writes data into path, creating parent directories.
func WriteBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
