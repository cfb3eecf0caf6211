// Package resolver turns a batch of validated requests into an execution plan.
// References are resolved against the session store and earlier requests of
// the batch; the result is a dependency graph checked once per batch.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapgis/internal/dag"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// LayerLookup finds pre-existing layers. layerstore.Store satisfies it.
type LayerLookup interface {
	Lookup(id string) (*core.Layer, bool)
}

// Node is one request of a plan.
type Node struct {
	// Key identifies the node in the graph: the request's output identifier,
	// or "#<position>" for requests that did not name their output.
	Key     string
	Index   int
	Request *core.ValidatedRequest
	// Parents lists the in-batch producers this node waits for.
	Parents []string
	// Existing lists referenced layers that were already in the store.
	Existing []string
}

// Named reports whether the request declared an output identifier.
func (n *Node) Named() bool { return n.Request.ID() != "" }

// Plan is a resolved batch. Order is the caller order and is topological.
type Plan struct {
	Order []*Node
	Graph *dag.Graph[*Node]
}

// Levels groups node keys into waves that can run concurrently.
func (p *Plan) Levels() ([][]string, error) {
	return p.Graph.Levels()
}

// Dependents returns the keys of every node downstream of key.
func (p *Plan) Dependents(key string) []string {
	return p.Graph.Descendants(key)
}

// Errors collects every resolution failure of a batch.
type Errors []*core.OperationError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, oe := range e {
		msgs[i] = oe.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	out := make([]error, len(e))
	for i, oe := range e {
		out[i] = oe
	}
	return out
}

// producer is what a reference can resolve to.
type producer struct {
	kind core.LayerKind
	node *Node // nil for store layers
}

// Resolve builds a plan for reqs. The batch fails atomically: on any
// violation the plan is nil and the error is Errors.
func Resolve(reqs []*core.ValidatedRequest, layers LayerLookup) (*Plan, error) {
	declared := make(map[string]int, len(reqs))
	for i, r := range reqs {
		if id := r.ID(); id != "" {
			if _, ok := declared[id]; !ok {
				declared[id] = i
			}
		}
	}

	var errs Errors
	fail := func(r *core.ValidatedRequest, oe *core.OperationError) {
		errs = append(errs, oe.WithRequest(string(r.Operation()), r.ID()))
	}

	outputs := make(map[string]producer, len(reqs))
	plan := &Plan{Graph: dag.New[*Node]()}

	for i, r := range reqs {
		node := &Node{Key: r.ID(), Index: i, Request: r}
		if node.Key == "" {
			node.Key = fmt.Sprintf("#%d", i+1)
		}
		op := r.Operation()
		named := r.ID() != ""

		if id := r.ID(); id != "" {
			if _, dup := outputs[id]; dup {
				fail(r, core.Errorf(core.KindDuplicateIdentifier, "output identifier %q is declared by an earlier request", id))
				named = false
			} else if _, exists := layers.Lookup(id); exists {
				fail(r, core.Errorf(core.KindDuplicateIdentifier, "output identifier %q collides with an existing layer", id))
				named = false
			}
		}

		for _, spec := range r.Contract().References() {
			v, present := r.Param(spec.Name)
			if !present {
				continue
			}
			for _, ref := range v.Strings() {
				oe := resolveRef(op, spec, ref, r.ID(), i, outputs, declared, layers, node)
				if oe != nil {
					fail(r, oe)
				}
			}
		}

		// Registered even when a reference failed, so dependents are not
		// reported as dangling on top of the real error.
		if named {
			outputs[r.ID()] = producer{kind: r.Contract().Output, node: node}
		}
		plan.Order = append(plan.Order, node)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	for _, n := range plan.Order {
		plan.Graph.AddNode(n.Key, n)
	}
	for _, n := range plan.Order {
		for _, p := range n.Parents {
			if err := plan.Graph.AddEdge(p, n.Key); err != nil {
				return nil, Errors{core.Errorf(core.KindCyclicReference, "%v", err).WithRequest(string(n.Request.Operation()), n.Request.ID())}
			}
		}
	}
	keys := make([]string, len(plan.Order))
	for i, n := range plan.Order {
		keys[i] = n.Key
	}
	if !plan.Graph.IsTopological(keys) {
		cycle := plan.Graph.FindCycle()
		return nil, Errors{core.Errorf(core.KindCyclicReference, "requests form a cycle: %s", strings.Join(cycle, " -> "))}
	}
	return plan, nil
}

func resolveRef(
	op core.Operation,
	spec *core.ParameterSpec,
	ref, self string,
	index int,
	outputs map[string]producer,
	declared map[string]int,
	layers LayerLookup,
	node *Node,
) *core.OperationError {
	if self != "" && ref == self {
		return &core.OperationError{
			Kind:    core.KindCyclicReference,
			Param:   spec.Name,
			Message: fmt.Sprintf("%s references the request's own output %q", spec.Name, ref),
		}
	}

	var kind core.LayerKind
	if p, ok := outputs[ref]; ok {
		kind = p.kind
		if !slices.Contains(node.Parents, p.node.Key) {
			node.Parents = append(node.Parents, p.node.Key)
		}
	} else if l, ok := layers.Lookup(ref); ok {
		kind = l.Kind
		if !slices.Contains(node.Existing, ref) {
			node.Existing = append(node.Existing, ref)
		}
	} else if at, later := declared[ref]; later && at > index {
		return &core.OperationError{
			Kind:    core.KindDanglingReference,
			Param:   spec.Name,
			Message: fmt.Sprintf("%s references %q, which is produced by a later request", spec.Name, ref),
		}
	} else {
		return &core.OperationError{
			Kind:    core.KindDanglingReference,
			Param:   spec.Name,
			Message: fmt.Sprintf("%s references unknown layer %q", spec.Name, ref),
		}
	}

	if !spec.LayerKind.Accepts(kind) {
		return core.TypeMismatch(op, spec.Name, string(spec.LayerKind)+" layer", fmt.Sprintf("%s layer %q", kind, ref))
	}
	return nil
}
