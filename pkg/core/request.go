package core

import "sort"

// Request is a raw, untrusted operation invocation as received from a caller.
// ID optionally names the output layer so later requests can reference it.
type Request struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Operation string         `json:"operation" yaml:"operation"`
	Params    map[string]any `json:"params" yaml:"params"`
}

// ValidatedRequest is a request that passed contract validation. Defaults are
// materialized, values are typed. It is immutable once built.
type ValidatedRequest struct {
	id       string
	op       Operation
	contract *OperationContract
	params   map[string]Value
}

// NewValidatedRequest is used by the validator; params is taken over, not copied.
func NewValidatedRequest(id string, contract *OperationContract, params map[string]Value) *ValidatedRequest {
	return &ValidatedRequest{id: id, op: contract.Name, contract: contract, params: params}
}

// ID returns the declared output identifier (may be empty).
func (r *ValidatedRequest) ID() string { return r.id }

// Operation returns the operation name.
func (r *ValidatedRequest) Operation() Operation { return r.op }

// Contract returns the contract the request was validated against.
func (r *ValidatedRequest) Contract() *OperationContract { return r.contract }

// Param returns the value of a parameter. Absent optional parameters without a
// declared default report false.
func (r *ValidatedRequest) Param(name string) (Value, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Params returns a copy of all parameter values.
func (r *ValidatedRequest) Params() map[string]Value {
	out := make(map[string]Value, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// ParamNames returns the present parameter names, sorted.
func (r *ValidatedRequest) ParamNames() []string {
	names := make([]string, 0, len(r.params))
	for k := range r.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// References returns, per reference-kind parameter, the layer identifiers it names.
func (r *ValidatedRequest) References() map[string][]string {
	refs := make(map[string][]string)
	for _, p := range r.contract.References() {
		if v, ok := r.params[p.Name]; ok {
			refs[p.Name] = v.Strings()
		}
	}
	return refs
}

// WithParam returns a copy with one parameter replaced. Used by the dispatcher
// to rewrite references after a repair pass; the receiver is left untouched.
func (r *ValidatedRequest) WithParam(name string, v Value) *ValidatedRequest {
	params := r.Params()
	params[name] = v
	return &ValidatedRequest{id: r.id, op: r.op, contract: r.contract, params: params}
}
