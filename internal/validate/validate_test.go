package validate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// sampleValue returns a valid raw value for a parameter.
func sampleValue(p *core.ParameterSpec) any {
	switch {
	case p.Type == core.TypeNumber:
		return 1
	case p.Type == core.TypeStringArray:
		return []any{"count"}
	case len(p.Enum) > 0:
		return p.Enum[0]
	case p.IsReference():
		return "L0000000001"
	}
	return "value"
}

// minimalRequest fills only the required parameters of c.
func minimalRequest(c *core.OperationContract) core.Request {
	params := map[string]any{}
	for i := range c.Params {
		if c.Params[i].Required {
			params[c.Params[i].Name] = sampleValue(&c.Params[i])
		}
	}
	return core.Request{Operation: string(c.Name), Params: params}
}

func TestValidate_MinimalRequestForEveryOperation(t *testing.T) {
	v := New(nil)
	for _, c := range catalog.Default().List() {
		t.Run(string(c.Name), func(t *testing.T) {
			vr, err := v.Validate(minimalRequest(c))
			require.NoError(t, err)
			assert.Equal(t, c.Name, vr.Operation())

			// Declared defaults are materialized; other optionals stay absent.
			for i := range c.Params {
				p := &c.Params[i]
				val, ok := vr.Param(p.Name)
				switch {
				case p.Required:
					assert.True(t, ok, p.Name)
				case p.Default != nil:
					require.True(t, ok, p.Name)
					assert.True(t, p.Default.Equal(val), p.Name)
				default:
					assert.False(t, ok, "%s should be pass-through absent", p.Name)
				}
			}
		})
	}
}

func TestValidate_MissingEveryRequiredParameter(t *testing.T) {
	v := New(nil)
	for _, c := range catalog.Default().List() {
		for i := range c.Params {
			p := c.Params[i]
			if !p.Required {
				continue
			}
			t.Run(string(c.Name)+"/"+p.Name, func(t *testing.T) {
				req := minimalRequest(c)
				delete(req.Params, p.Name)

				_, err := v.Validate(req)
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.KindMissingParameter))
				oe, ok := core.AsOperationError(err)
				require.True(t, ok)
				assert.Equal(t, p.Name, oe.Param)
			})
		}
	}
}

func TestValidate_UnknownOperation(t *testing.T) {
	_, err := New(nil).Validate(core.Request{ID: "a", Operation: "native_nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.KindUnknownOperation))
	assert.Contains(t, err.Error(), "[a]")
}

func TestValidate_UnknownParameter(t *testing.T) {
	_, err := New(nil).Validate(core.Request{
		Operation: "native_buffer",
		Params:    map[string]any{"INPUT": "L1", "ZETA": 1, "COLOR": "red"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.KindUnknownParameter))
	oe, _ := core.AsOperationError(err)
	assert.Equal(t, "COLOR", oe.Param, "keys are checked in sorted order")
}

func TestValidate_BufferDefaults(t *testing.T) {
	vr, err := New(nil).Validate(core.Request{
		ID:        "buffered",
		Operation: "native_buffer",
		Params:    map[string]any{"INPUT": "roads"},
	})
	require.NoError(t, err)
	assert.Equal(t, "buffered", vr.ID())

	d, ok := vr.Param("DISTANCE")
	require.True(t, ok)
	assert.InDelta(t, 10.0, d.Number(), 0)
	_, ok = vr.Param("SEGMENTS")
	assert.False(t, ok)
	assert.Equal(t, map[string][]string{"INPUT": {"roads"}}, vr.References())
}

func TestValidate_Numbers(t *testing.T) {
	v := New(nil)
	for _, raw := range []any{5, int64(5), uint8(5), float32(5), 5.0, json.Number("5")} {
		vr, err := v.Validate(core.Request{
			Operation: "native_buffer",
			Params:    map[string]any{"INPUT": "L1", "DISTANCE": raw},
		})
		require.NoError(t, err, "%T", raw)
		d, _ := vr.Param("DISTANCE")
		assert.InDelta(t, 5.0, d.Number(), 0)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	tests := []struct {
		name   string
		req    core.Request
		param  string
		expect string
	}{
		{
			name:   "string for number",
			req:    core.Request{Operation: "native_buffer", Params: map[string]any{"INPUT": "L1", "DISTANCE": "far"}},
			param:  "DISTANCE",
			expect: "number",
		},
		{
			name:   "number for reference",
			req:    core.Request{Operation: "native_buffer", Params: map[string]any{"INPUT": 3}},
			param:  "INPUT",
			expect: "string",
		},
		{
			name:   "enum violation",
			req:    core.Request{Operation: "native_buffer", Params: map[string]any{"INPUT": "L1", "END_CAP_STYLE": "pointy"}},
			param:  "END_CAP_STYLE",
			expect: "one of [round, flat, square]",
		},
		{
			name:   "mixed array",
			req:    core.Request{Operation: "native_mergevectorlayers", Params: map[string]any{"LAYERS": []any{"a", 1}}},
			param:  "LAYERS",
			expect: "array of strings",
		},
		{
			name:   "scalar for array",
			req:    core.Request{Operation: "native_aggregate", Params: map[string]any{"INPUT": "L1", "AGGREGATES": "sum"}},
			param:  "AGGREGATES",
			expect: "array of strings",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Validate(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.KindTypeMismatch))
			oe, _ := core.AsOperationError(err)
			assert.Equal(t, tt.param, oe.Param)
			assert.Equal(t, tt.expect, oe.Expected)
		})
	}
}

func TestValidate_EmptyRequiredValues(t *testing.T) {
	v := New(nil)

	_, err := v.Validate(core.Request{Operation: "native_mergevectorlayers", Params: map[string]any{"LAYERS": []string{}}})
	assert.True(t, errors.Is(err, core.KindMissingParameter))

	_, err = v.Validate(core.Request{Operation: "native_dissolve", Params: map[string]any{"INPUT": " "}})
	assert.True(t, errors.Is(err, core.KindMissingParameter))

	_, err = v.Validate(core.Request{Operation: "native_dissolve", Params: map[string]any{"INPUT": nil}})
	assert.True(t, errors.Is(err, core.KindMissingParameter))
}

func TestValidate_BlankReferencesShareOneKind(t *testing.T) {
	v := New(nil)
	tests := []struct {
		name  string
		req   core.Request
		param string
	}{
		{"scalar", core.Request{Operation: "native_dissolve", Params: map[string]any{"INPUT": ""}}, "INPUT"},
		{"array element", core.Request{Operation: "native_mergevectorlayers", Params: map[string]any{"LAYERS": []any{"parcels", ""}}}, "LAYERS"},
		{"blank array element", core.Request{Operation: "native_mergevectorlayers", Params: map[string]any{"LAYERS": []string{" "}}}, "LAYERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.KindMissingParameter), "got %v", err)
			assert.False(t, errors.Is(err, core.KindTypeMismatch))
			oe, _ := core.AsOperationError(err)
			assert.Equal(t, tt.param, oe.Param)
		})
	}
}

func TestValidate_Immutable(t *testing.T) {
	layers := []string{"a", "b"}
	raw := map[string]any{"LAYERS": layers}
	vr, err := New(nil).Validate(core.Request{Operation: "native_mergevectorlayers", Params: raw})
	require.NoError(t, err)

	layers[0] = "z"
	raw["CRS"] = "EPSG:3857"
	got, _ := vr.Param("LAYERS")
	assert.Equal(t, []string{"a", "b"}, got.Strings())
	_, ok := vr.Param("CRS")
	assert.False(t, ok)
}

func TestValidateAll_JoinsErrors(t *testing.T) {
	_, err := New(nil).ValidateAll([]core.Request{
		{Operation: "native_buffer", Params: map[string]any{"INPUT": "L1"}},
		{Operation: "native_nope"},
		{Operation: "native_dissolve"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.KindUnknownOperation))
	assert.True(t, errors.Is(err, core.KindMissingParameter))
}
