package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

func TestDefault_CoversEveryOperation(t *testing.T) {
	reg := Default()
	require.Equal(t, len(core.Operations()), reg.Len())

	for _, op := range core.Operations() {
		c, err := reg.Get(string(op))
		require.NoError(t, err, op)
		assert.Equal(t, op, c.Name)
		assert.NotEmpty(t, c.Description, op)
		assert.NotEmpty(t, c.Output, op)
	}
}

func TestDefault_IsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestGet_Unknown(t *testing.T) {
	_, err := Default().Get("native_teleport")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.KindUnknownOperation))
	assert.Contains(t, err.Error(), "native_teleport")
}

func TestList_Sorted(t *testing.T) {
	list := Default().List()
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}

	// List returns a copy.
	list[0] = nil
	assert.NotNil(t, Default().List()[0])
}

func TestNew_RejectsBrokenContracts(t *testing.T) {
	d := core.StringValue("x")
	tests := []struct {
		name string
		cs   []core.OperationContract
	}{
		{
			name: "duplicate operation",
			cs: []core.OperationContract{
				{Name: core.OpFixGeometries},
				{Name: core.OpFixGeometries},
			},
		},
		{
			name: "required with default",
			cs: []core.OperationContract{{
				Name: core.OpBuffer,
				Params: []core.ParameterSpec{
					{Name: "INPUT", Shape: core.ShapeScalar, Type: core.TypeString, Required: true, Default: &d},
				},
			}},
		},
		{
			name: "duplicate parameter",
			cs: []core.OperationContract{{
				Name: core.OpBuffer,
				Params: []core.ParameterSpec{
					{Name: "INPUT", Shape: core.ShapeScalar, Type: core.TypeString},
					{Name: "INPUT", Shape: core.ShapeScalar, Type: core.TypeString},
				},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cs)
			assert.Error(t, err)
		})
	}
}

func TestContracts_Defaults(t *testing.T) {
	reg := Default()

	for _, op := range []core.Operation{core.OpWarpReproject, core.OpReprojectLayer} {
		c, err := reg.Get(string(op))
		require.NoError(t, err)
		p, ok := c.Param(core.ParamTargetCRS)
		require.True(t, ok)
		require.NotNil(t, p.Default)
		assert.Equal(t, "EPSG:4326", p.Default.String())
	}

	c, err := reg.Get(string(core.OpBuffer))
	require.NoError(t, err)
	p, ok := c.Param(core.ParamDistance)
	require.True(t, ok)
	require.NotNil(t, p.Default)
	assert.InDelta(t, 10.0, p.Default.Number(), 0)
}

func TestContracts_References(t *testing.T) {
	reg := Default()
	tests := []struct {
		op   core.Operation
		refs []string
	}{
		{core.OpWarpReproject, []string{"INPUT"}},
		{core.OpBuffer, []string{"INPUT"}},
		{core.OpJoinByLocation, []string{"INPUT", "JOIN"}},
		{core.OpMergeVectorLayers, []string{"LAYERS"}},
		{core.OpClip, []string{"INPUT", "OVERLAY"}},
		{core.OpIntersection, []string{"INPUT", "OVERLAY"}},
		{core.OpJoinByLocationSummary, []string{"INPUT", "JOIN"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			c, err := reg.Get(string(tt.op))
			require.NoError(t, err)
			var names []string
			for _, p := range c.References() {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.refs, names)
		})
	}

	warp, _ := reg.Get(string(core.OpWarpReproject))
	in, _ := warp.Param(core.ParamInput)
	assert.Equal(t, core.LayerKindRaster, in.LayerKind)
	assert.Equal(t, core.LayerKindRaster, warp.Output)
}

func TestAggregates(t *testing.T) {
	assert.True(t, IsAggregateFunction("sum"))
	assert.True(t, IsAggregateFunction("COUNT_DISTINCT"))
	assert.False(t, IsAggregateFunction("geometric_mean"))
	assert.Len(t, AggregateFunctions(), 15)

	assert.Equal(t, Aggregate{Function: "sum", Field: "population"}, ParseAggregate(" SUM : population"))
	assert.Equal(t, Aggregate{Function: "count"}, ParseAggregate("count"))
	assert.Equal(t, "population_sum", ParseAggregate("sum:population").OutputField())
	assert.Equal(t, "count", ParseAggregate("count").OutputField())
}
