// Package state records pipeline run history in SQLite: runs, the operation
// runs inside them, and the layers they produced.
package state

import (
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Type aliases so callers can stay within this package for history types.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// Run is an alias for core.Run.
	Run = core.Run

	// OperationRun is an alias for core.OperationRun.
	OperationRun = core.OperationRun

	// Layer is an alias for core.PersistedLayer.
	Layer = core.PersistedLayer
)
