// Package qgis provides a geoprocessing engine backed by a QGIS processing service.
//
// This file registers the QGIS bridge with the adapter registry.
// Import this package with a blank identifier to register the engine:
//
//	import _ "github.com/leapstack-labs/leapgis/pkg/adapters/qgis"
package qgis

import (
	"log/slog"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

func init() {
	adapter.Register("qgis", func(logger *slog.Logger) adapter.Engine { return New(logger) })
}
