package core

import "time"

// ResultStatus is the outcome of one request in a pipeline.
type ResultStatus string

// Result statuses.
const (
	StatusSuccess   ResultStatus = "success"
	StatusFailed    ResultStatus = "failed"
	StatusSkipped   ResultStatus = "skipped"
	StatusCancelled ResultStatus = "cancelled"
)

// Result is the uniform outcome of dispatching one request.
type Result struct {
	RequestID string
	Operation string
	Status    ResultStatus
	Layer     *Layer
	// Attempts counts engine calls for the operation itself; the repair pass
	// is not counted.
	Attempts int
	Repaired bool
	Duration time.Duration
	Err      *OperationError
}

// OK reports whether the request produced a layer.
func (r *Result) OK() bool {
	return r.Status == StatusSuccess && r.Layer != nil
}

// Failed builds a failed result carrying err.
func Failed(req *ValidatedRequest, err *OperationError) Result {
	res := Result{Status: StatusFailed, Err: err}
	if req != nil {
		res.RequestID = req.ID()
		res.Operation = string(req.Operation())
		res.Err = err.WithRequest(string(req.Operation()), req.ID())
	}
	return res
}
