// Package memory provides an in-process reference engine built on orb.
//
// This file registers the memory engine with the adapter registry.
// Import this package with a blank identifier to register the engine:
//
//	import _ "github.com/leapstack-labs/leapgis/pkg/adapters/memory"
package memory

import (
	"log/slog"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

func init() {
	adapter.Register("memory", func(logger *slog.Logger) adapter.Engine { return New(logger) })
}
