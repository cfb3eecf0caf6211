package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the dispatch layer can report.
// ErrorKind implements error so it can be used as an errors.Is target:
//
//	errors.Is(err, core.KindTimeout)
type ErrorKind string

// Failure taxonomy.
const (
	KindUnknownOperation             ErrorKind = "UnknownOperation"
	KindMissingParameter             ErrorKind = "MissingParameter"
	KindUnknownParameter             ErrorKind = "UnknownParameter"
	KindTypeMismatch                 ErrorKind = "TypeMismatch"
	KindDanglingReference            ErrorKind = "DanglingReference"
	KindCyclicReference              ErrorKind = "CyclicReference"
	KindDuplicateIdentifier          ErrorKind = "DuplicateIdentifier"
	KindGeometryTypeMismatch         ErrorKind = "GeometryTypeMismatch"
	KindUnsupportedAggregateFunction ErrorKind = "UnsupportedAggregateFunction"
	KindInvalidGeometry              ErrorKind = "InvalidGeometry"
	KindEngineFailure                ErrorKind = "EngineFailure"
	KindTimeout                      ErrorKind = "Timeout"
)

func (k ErrorKind) Error() string { return string(k) }

// IsRequestError reports whether the kind is detected before any engine call.
// Request errors indicate a malformed request and are never retried.
func (k ErrorKind) IsRequestError() bool {
	switch k {
	case KindUnknownOperation, KindMissingParameter, KindUnknownParameter, KindTypeMismatch,
		KindDanglingReference, KindCyclicReference, KindDuplicateIdentifier,
		KindGeometryTypeMismatch, KindUnsupportedAggregateFunction:
		return true
	}
	return false
}

// OperationError is a classified failure with enough context to pinpoint the
// failing step of a pipeline.
type OperationError struct {
	Kind      ErrorKind
	Operation string
	RequestID string
	Param     string
	Expected  string
	Actual    string
	Message   string
	Err       error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		b.WriteString(e.Operation)
		if e.RequestID != "" {
			fmt.Fprintf(&b, "[%s]", e.RequestID)
		}
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Param != "" {
		fmt.Fprintf(&b, " (%s)", e.Param)
	}
	if msg := e.Detail(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Detail returns the human-readable part of the error without its context.
func (e *OperationError) Detail() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Expected != "" || e.Actual != "":
		return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
	case e.Err != nil:
		return e.Err.Error()
	}
	return ""
}

// Unwrap returns the underlying cause, if any.
func (e *OperationError) Unwrap() error { return e.Err }

// Is matches ErrorKind targets.
func (e *OperationError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && e.Kind == k
}

// WithRequest returns a copy annotated with the failing request.
func (e *OperationError) WithRequest(op, requestID string) *OperationError {
	c := *e
	if c.Operation == "" {
		c.Operation = op
	}
	if c.RequestID == "" {
		c.RequestID = requestID
	}
	return &c
}

// AsOperationError extracts an OperationError from an error chain.
func AsOperationError(err error) (*OperationError, bool) {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err, or KindEngineFailure when err is
// not classified.
func KindOf(err error) ErrorKind {
	if oe, ok := AsOperationError(err); ok {
		return oe.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return KindEngineFailure
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *OperationError {
	return &OperationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MissingParameter reports a required parameter that was not supplied.
func MissingParameter(op Operation, param string) *OperationError {
	return &OperationError{
		Kind:      KindMissingParameter,
		Operation: string(op),
		Param:     param,
		Message:   fmt.Sprintf("%s is required", param),
	}
}

// UnknownParameter reports a supplied parameter absent from the contract.
func UnknownParameter(op Operation, param string) *OperationError {
	return &OperationError{
		Kind:      KindUnknownParameter,
		Operation: string(op),
		Param:     param,
		Message:   fmt.Sprintf("%s is not a parameter of %s", param, op),
	}
}

// TypeMismatch reports a value whose type does not match the declaration.
func TypeMismatch(op Operation, param, expected, actual string) *OperationError {
	return &OperationError{
		Kind:      KindTypeMismatch,
		Operation: string(op),
		Param:     param,
		Expected:  expected,
		Actual:    actual,
	}
}
