// Package catalog holds the static operation catalog: one strict contract per
// operation, looked up by name.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Registry maps operation names to their contracts. It has no mutation API
// and is safe for concurrent use.
type Registry struct {
	byName map[core.Operation]*core.OperationContract
	sorted []*core.OperationContract
}

// New builds a registry from contracts. Every contract is checked for
// structural invariants and names must be unique.
func New(cs []core.OperationContract) (*Registry, error) {
	r := &Registry{byName: make(map[core.Operation]*core.OperationContract, len(cs))}
	for i := range cs {
		c := cs[i]
		if err := c.Check(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("operation %s registered twice", c.Name)
		}
		r.byName[c.Name] = &c
		r.sorted = append(r.sorted, &c)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].Name < r.sorted[j].Name })
	return r, nil
}

// Default returns the process-wide registry built from the compiled-in catalog.
var Default = sync.OnceValue(func() *Registry {
	r, err := New(contracts)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return r
})

// Get returns the contract for name, or an UnknownOperation error.
func (r *Registry) Get(name string) (*core.OperationContract, error) {
	c, ok := r.byName[core.Operation(name)]
	if !ok {
		return nil, &core.OperationError{
			Kind:      core.KindUnknownOperation,
			Operation: name,
			Message:   fmt.Sprintf("unknown operation %q", name),
		}
	}
	return c, nil
}

// List returns all contracts sorted by name.
func (r *Registry) List() []*core.OperationContract {
	out := make([]*core.OperationContract, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Len returns the number of registered operations.
func (r *Registry) Len() int { return len(r.sorted) }
