// Package core defines the shared language of the leapgis system.
//
// This package contains:
//   - Domain entities (Layer, OperationContract, ValidatedRequest, Result, Run)
//   - The typed parameter value model (Value, ValueType)
//   - The failure taxonomy (ErrorKind, OperationError)
//   - Service interfaces (Store)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
