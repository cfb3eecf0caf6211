// Package postgis provides a geoprocessing engine backed by PostGIS.
//
// This file registers the PostGIS engine with the adapter registry.
// Import this package with a blank identifier to register the engine:
//
//	import _ "github.com/leapstack-labs/leapgis/pkg/adapters/postgis"
package postgis

import (
	"log/slog"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

func init() {
	adapter.Register("postgis", func(logger *slog.Logger) adapter.Engine { return New(logger) })
}
