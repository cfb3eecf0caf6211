package spatialsql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// invalidGeometryMarkers are fragments of GEOS and database messages raised
// for geometries an operation cannot process.
var invalidGeometryMarkers = []string{
	"invalid geometry",
	"topologyexception",
	"self-intersection",
	"non-noded intersection",
	"ring self-intersection",
	"is not valid",
	"invalid polygon",
}

// classify maps a database error to an engine error. Context errors and
// errors that are already classified pass through.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ee *adapter.EngineError
	if errors.As(err, &ee) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range invalidGeometryMarkers {
		if strings.Contains(msg, m) {
			return &adapter.EngineError{Code: adapter.CodeInvalidGeometry, Message: fmt.Sprintf(format, args...), Err: err}
		}
	}
	return adapter.Failure(err, format, args...)
}
