package geojsonio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRSMember(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	assert.Equal(t, "EPSG:4326", CollectionCRS(fc))

	SetCRS(fc, "epsg:3857")
	assert.Equal(t, "EPSG:3857", CollectionCRS(fc))

	SetCRS(fc, "EPSG:4326")
	assert.NotContains(t, fc.ExtraMembers, "crs")
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	SetCRS(fc, "EPSG:3857")

	path := OutputPath(dir, "L1", ".geojson")
	assert.Equal(t, filepath.Join(dir, "L1.geojson"), path)
	require.NoError(t, Write(path, fc))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.NotNil(t, got.Features[0].Properties)
	assert.Equal(t, "EPSG:3857", CollectionCRS(got))
	assert.Equal(t, "L1", LayerName(path))

	nested := filepath.Join(dir, "a", "b", "out.geojson")
	assert.Equal(t, nested, OutputPath(nested, "L1", ".geojson"))
	require.NoError(t, WriteBytes(nested, []byte("{}")))
	_, err = os.Stat(nested)
	assert.NoError(t, err)

	_, err = Read(filepath.Join(dir, "missing.geojson"))
	assert.Error(t, err)
}

func TestGeometryTypeAndFieldNames(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	a := geojson.NewFeature(orb.Point{1, 2})
	a.Properties["b"] = 1
	b := geojson.NewFeature(orb.MultiPoint{{3, 4}})
	b.Properties["a"] = "x"
	b.Properties["b"] = 2
	fc.Append(a)
	fc.Append(b)

	assert.Equal(t, []string{"a", "b"}, FieldNames(fc))
	assert.Equal(t, "MultiPoint", string(GeometryType(fc)))
}
