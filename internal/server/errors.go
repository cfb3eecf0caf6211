package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Kinds reported for failures outside the operation taxonomy.
const (
	kindNotFound   core.ErrorKind = "NotFound"
	kindBadRequest core.ErrorKind = "BadRequest"
)

// statusFor maps a failure kind onto an HTTP status: request errors are
// client errors, engine failures are gateway errors.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case kindNotFound:
		return http.StatusNotFound
	case kindBadRequest:
		return http.StatusBadRequest
	case core.KindUnknownOperation:
		return http.StatusNotFound
	case core.KindDuplicateIdentifier:
		return http.StatusConflict
	case core.KindInvalidGeometry:
		return http.StatusUnprocessableEntity
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	case core.KindEngineFailure:
		return http.StatusBadGateway
	}
	if kind.IsRequestError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorsBody carries every failure of a rejected batch.
type errorsBody struct {
	Errors []engine.ErrorView `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a single classified failure.
func writeError(w http.ResponseWriter, err error) {
	view := engine.NewErrorView(err)
	writeJSON(w, statusFor(view.Kind), view)
}

// writeErrors writes every failure joined in err. The status follows the
// first failure.
func writeErrors(w http.ResponseWriter, err error) {
	views := engine.ErrorViews(err)
	status := http.StatusInternalServerError
	if len(views) > 0 {
		status = statusFor(views[0].Kind)
	}
	writeJSON(w, status, errorsBody{Errors: views})
}

func notFound(msg string) error {
	return &core.OperationError{Kind: kindNotFound, Message: msg}
}

func badRequest(err error) error {
	var oe *core.OperationError
	if errors.As(err, &oe) {
		return oe
	}
	return &core.OperationError{Kind: kindBadRequest, Message: err.Error(), Err: err}
}
