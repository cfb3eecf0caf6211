package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

func TestTools_OnePerOperation(t *testing.T) {
	tools := Tools(Default())
	require.Len(t, tools, len(core.Operations()))
	for _, tool := range tools {
		assert.Equal(t, "function", tool.Type)
		require.NotNil(t, tool.Function.Parameters, tool.Function.Name)
	}
}

func TestParametersSchema_Buffer(t *testing.T) {
	c, err := Default().Get(string(core.OpBuffer))
	require.NoError(t, err)

	s := ParametersSchema(c)
	assert.Equal(t, []string{"INPUT"}, s.Required)
	require.Contains(t, s.Properties, "DISTANCE")
	assert.Equal(t, 10.0, s.Properties["DISTANCE"].Value.Default)
	require.Contains(t, s.Properties, "END_CAP_STYLE")
	assert.Equal(t, []any{"round", "flat", "square"}, s.Properties["END_CAP_STYLE"].Value.Enum)

	assert.NoError(t, s.VisitJSON(map[string]any{"INPUT": "L1", "DISTANCE": 5.0}))
	assert.Error(t, s.VisitJSON(map[string]any{"DISTANCE": 5.0}), "missing INPUT")
	assert.Error(t, s.VisitJSON(map[string]any{"INPUT": "L1", "END_CAP_STYLE": "pointy"}))
	assert.Error(t, s.VisitJSON(map[string]any{"INPUT": "L1", "COLOR": "red"}))
}

func TestTools_JSON(t *testing.T) {
	data, err := json.Marshal(Tools(Default()))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotEmpty(t, decoded)

	fn := decoded[0]["function"].(map[string]any)
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}
