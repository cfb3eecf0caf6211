package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Engine error codes.
const (
	CodeInvalidGeometry = "invalid_geometry"
	CodeUnsupported     = "unsupported"
	CodeNotFound        = "not_found"
	CodeFailure         = "failure"
)

// EngineError is the error type engines return from Execute.
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error { return e.Err }

// InvalidGeometry reports input geometries the engine cannot process.
func InvalidGeometry(format string, args ...any) *EngineError {
	return &EngineError{Code: CodeInvalidGeometry, Message: fmt.Sprintf(format, args...)}
}

// Unsupported reports an operation or parameter combination the engine lacks.
func Unsupported(format string, args ...any) *EngineError {
	return &EngineError{Code: CodeUnsupported, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an input layer the engine does not know.
func NotFound(id string) *EngineError {
	return &EngineError{Code: CodeNotFound, Message: fmt.Sprintf("layer %q not found", id)}
}

// Failure wraps any other engine error.
func Failure(err error, format string, args ...any) *EngineError {
	return &EngineError{Code: CodeFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the engine error code of err. Context errors keep their
// identity so callers can map deadlines; anything unclassified is a failure.
func CodeOf(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeFailure
}

// IsTimeout reports whether err stems from a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
