// Package layerstore is the per-session registry of layer handles produced by
// the dispatcher. Identifiers are unique for the lifetime of a store and are
// never reused once released.
package layerstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

type entryState int

const (
	stateReserved entryState = iota
	stateReady
	stateReleased
	stateAbandoned
)

type entry struct {
	mu    sync.Mutex
	state entryState
	layer *core.Layer
	err   error
	ready chan struct{}
}

func newEntry() *entry {
	return &entry{ready: make(chan struct{})}
}

// Store maps identifiers to layers. Each identifier has its own lock, so
// unrelated pipeline branches never contend.
type Store struct {
	index sync.Map // string -> *entry
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Reserve claims id for a layer that will be produced later. Await on a
// reserved id blocks until Put or Abandon. An abandoned id can be reserved
// again.
func (s *Store) Reserve(id string) error {
	if id == "" {
		return fmt.Errorf("layer identifier is empty")
	}
	if _, ok := s.claim(id); !ok {
		return duplicate(id)
	}
	return nil
}

// claim returns a fresh reserved entry for id, replacing an abandoned one.
func (s *Store) claim(id string) (*entry, bool) {
	fresh := newEntry()
	for {
		v, loaded := s.index.LoadOrStore(id, fresh)
		if !loaded {
			return fresh, true
		}
		old := v.(*entry)
		if !old.abandoned() {
			return old, false
		}
		if s.index.CompareAndSwap(id, old, fresh) {
			return fresh, true
		}
	}
}

func (e *entry) abandoned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateAbandoned
}

// Put stores l under id, fulfilling a reservation if one exists. The stored
// layer is a copy whose ID is id.
func (s *Store) Put(id string, l *core.Layer) error {
	if id == "" {
		return fmt.Errorf("layer identifier is empty")
	}
	if l == nil {
		return fmt.Errorf("layer %q is nil", id)
	}
	e, _ := s.claim(id)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateReserved {
		return duplicate(id)
	}
	c := l.Clone()
	c.ID = id
	e.layer = c
	e.state = stateReady
	close(e.ready)
	return nil
}

// Abandon gives up a reservation. Waiters and later readers receive err
// until the identifier is claimed again by Reserve or Put.
func (s *Store) Abandon(id string, err error) {
	v, ok := s.index.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	if e.state != stateReserved {
		e.mu.Unlock()
		return
	}
	if err == nil {
		err = fmt.Errorf("layer %q was not produced", id)
	}
	e.err = err
	e.state = stateAbandoned
	close(e.ready)
	e.mu.Unlock()
}

// Await blocks until id is available and returns it. It fails fast for
// unknown identifiers and returns the producer's error for abandoned ones.
func (s *Store) Await(ctx context.Context, id string) (*core.Layer, error) {
	v, ok := s.index.Load(id)
	if !ok {
		return nil, dangling(id)
	}
	e := v.(*entry)
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.get(id)
}

// Get returns the layer stored under id.
func (s *Store) Get(id string) (*core.Layer, error) {
	v, ok := s.index.Load(id)
	if !ok {
		return nil, dangling(id)
	}
	return v.(*entry).get(id)
}

func (e *entry) get(id string) (*core.Layer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateReady:
		return e.layer.Clone(), nil
	case stateAbandoned:
		return nil, e.err
	case stateReleased:
		return nil, core.Errorf(core.KindDanglingReference, "layer %q was released", id)
	default:
		return nil, core.Errorf(core.KindDanglingReference, "layer %q is not produced yet", id)
	}
}

// Lookup reports a ready layer. Reserved and released identifiers are not found.
func (s *Store) Lookup(id string) (*core.Layer, bool) {
	l, err := s.Get(id)
	return l, err == nil
}

// Release drops the layer stored under id and returns it so the caller can
// free engine-side artifacts. The identifier stays tombstoned.
func (s *Store) Release(id string) (*core.Layer, error) {
	v, ok := s.index.Load(id)
	if !ok {
		return nil, dangling(id)
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateReady {
		return nil, core.Errorf(core.KindDanglingReference, "layer %q is not available", id)
	}
	l := e.layer
	e.layer = nil
	e.state = stateReleased
	return l, nil
}

// List returns every ready layer sorted by identifier.
func (s *Store) List() []*core.Layer {
	var out []*core.Layer
	s.index.Range(func(k, v any) bool {
		if l, err := v.(*entry).get(k.(string)); err == nil {
			out = append(out, l)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReleaseAll releases every ready layer and returns them.
func (s *Store) ReleaseAll() []*core.Layer {
	var out []*core.Layer
	for _, l := range s.List() {
		if released, err := s.Release(l.ID); err == nil {
			out = append(out, released)
		}
	}
	return out
}

func duplicate(id string) *core.OperationError {
	return core.Errorf(core.KindDuplicateIdentifier, "layer identifier %q is already in use", id)
}

func dangling(id string) *core.OperationError {
	return core.Errorf(core.KindDanglingReference, "unknown layer %q", id)
}
