// Package duckdb provides a geoprocessing engine backed by DuckDB spatial.
//
// This file registers the DuckDB engine with the adapter registry.
// Import this package with a blank identifier to register the engine:
//
//	import _ "github.com/leapstack-labs/leapgis/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Engine { return New(logger) })
}
