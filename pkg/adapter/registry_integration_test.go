package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"

	// Import adapter packages to ensure engines are registered via init()
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/memory"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/postgis"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/qgis"
)

func TestSelfRegistration(t *testing.T) {
	for _, name := range []string{"memory", "postgis", "duckdb", "qgis"} {
		assert.True(t, adapter.IsRegistered(name), "%s engine should be auto-registered", name)
	}
	assert.False(t, adapter.IsRegistered("unknown_engine"))
}

func TestGet(t *testing.T) {
	factory, ok := adapter.Get("memory")
	require.True(t, ok, "Get(memory) should return true")
	require.NotNil(t, factory)

	_, ok = adapter.Get("nonexistent")
	assert.False(t, ok, "Get(nonexistent) should return false")
}

func TestNewEngine_EveryEngineImplementsOptionalInterfaces(t *testing.T) {
	for _, name := range []string{"memory", "postgis", "duckdb", "qgis"} {
		t.Run(name, func(t *testing.T) {
			e, err := adapter.NewEngine(core.AdapterConfig{Type: name}, nil)
			require.NoError(t, err)
			assert.Implements(t, (*adapter.Importer)(nil), e)
			assert.Implements(t, (*adapter.Exporter)(nil), e)
			assert.Implements(t, (*adapter.Discarder)(nil), e)
		})
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	_, err := adapter.NewEngine(core.AdapterConfig{Type: "unknown_engine"}, nil)
	require.Error(t, err)

	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "unknown_engine", unknownErr.Type)
	assert.Contains(t, unknownErr.Available, "memory")
	assert.Contains(t, unknownErr.Available, "qgis")
}
