package starlark

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitSquare = orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

func evalValue(t *testing.T, src string, f Feature) any {
	t.Helper()
	x, err := Compile(src)
	require.NoError(t, err)
	v, err := NewEvaluator(context.Background(), "test").Value(x, f)
	require.NoError(t, err)
	return v
}

func TestEvaluator_Value(t *testing.T) {
	f := Feature{
		Attributes: map[string]any{"pop": 21, "name": "Oslo", "rate": 0.5, "land use": "forest"},
		Geometry:   unitSquare,
	}

	assert.Equal(t, int64(42), evalValue(t, `"pop" * 2`, f))
	assert.Equal(t, int64(22), evalValue(t, `pop + 1`, f))
	assert.Equal(t, true, evalValue(t, `"name" = 'Oslo' AND "rate" < 1`, f))
	assert.Equal(t, "OSLO", evalValue(t, `upper("name")`, f))
	assert.Equal(t, "forest", evalValue(t, `"land use"`, f))
	assert.Equal(t, 1.0, evalValue(t, `$area`, f))
	assert.Equal(t, int64(5), evalValue(t, `coalesce("missing", 5)`, f))
	assert.Equal(t, "Oslo-21", evalValue(t, `"name" || '-' || to_string("pop")`, f))
	assert.Nil(t, evalValue(t, `"missing"`, f))
}

func TestEvaluator_Geometry(t *testing.T) {
	ev := NewEvaluator(context.Background(), "test")

	x, err := Compile(`translate($geometry, 1, 2)`)
	require.NoError(t, err)
	g, err := ev.Geometry(x, Feature{Geometry: orb.Point{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 2}, g)

	x, err = Compile(`centroid($geometry)`)
	require.NoError(t, err)
	square := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	g, err = ev.Geometry(x, Feature{Geometry: square})
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1, 1}, g)
	assert.Equal(t, orb.Point{0, 0}, square[0][0], "input geometry is not modified")

	x, err = Compile(`make_point("lon", "lat")`)
	require.NoError(t, err)
	g, err = ev.Geometry(x, Feature{Attributes: map[string]any{"lon": 10.75, "lat": 59.9}})
	require.NoError(t, err)
	assert.Equal(t, orb.Point{10.75, 59.9}, g)
}

func TestEvaluator_Errors(t *testing.T) {
	_, err := Compile(`"a" +`)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, -1, ee.Feature)

	_, err = Compile("   ")
	assert.Error(t, err)

	ev := NewEvaluator(context.Background(), "test")
	x, err := Compile(`"pop" + 1`)
	require.NoError(t, err)
	_, err = ev.Geometry(x, Feature{Index: 3, Attributes: map[string]any{"pop": 1}})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Feature)
	assert.Contains(t, err.Error(), "want geometry")

	_, err = ev.Value(x, Feature{Index: 4, Attributes: map[string]any{"pop": "x"}})
	assert.ErrorContains(t, err, "feature 4")
}

func TestEvaluator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, err := Compile(`[i for i in range(100000)]`)
	require.NoError(t, err)
	_, err = NewEvaluator(ctx, "test").Value(x, Feature{})
	assert.Error(t, err)
}

func TestEvaluator_StepLimit(t *testing.T) {
	x, err := Compile(`[i for i in range(100000)]`)
	require.NoError(t, err)
	ev := NewEvaluator(context.Background(), "test")
	ev.MaxSteps = 100
	_, err = ev.Value(x, Feature{})
	assert.Error(t, err)
}
