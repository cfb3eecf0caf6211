// Package adapter defines the contract between the dispatch layer and
// geoprocessing engines.
//
// Concrete engines live in pkg/adapters/ subdirectories and register
// themselves from init(). The dispatcher never inspects engine internals: it
// hands over a Request and receives a layer handle or an *EngineError.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Engine executes catalog operations.
type Engine interface {
	// Connect prepares the engine using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close releases engine resources.
	Close() error

	// Execute runs one operation and returns the produced layer. The returned
	// layer's ID must equal req.OutputID.
	Execute(ctx context.Context, req *Request) (*core.Layer, error)
}

// Importer is implemented by engines that can load pre-existing layers from files.
type Importer interface {
	Import(ctx context.Context, id, path string) (*core.Layer, error)
}

// Exporter is implemented by engines that can write layers out.
// Path may be a directory; the returned path names the written file.
type Exporter interface {
	Export(ctx context.Context, layer *core.Layer, path string) (string, error)
}

// Discarder is implemented by engines whose layers hold resources that must be
// dropped explicitly (tables, objects, memory).
type Discarder interface {
	Discard(ctx context.Context, layer *core.Layer) error
}

// Request is one operation call as seen by an engine.
type Request struct {
	Operation   core.Operation
	AlgorithmID string
	// Params holds the non-reference parameters, defaults included.
	Params map[string]core.Value
	// Inputs holds the concrete layers for every reference parameter.
	Inputs   map[string][]*core.Layer
	OutputID string
}

// Input returns the first layer bound to a reference parameter.
func (r *Request) Input(name string) *core.Layer {
	if ls := r.Inputs[name]; len(ls) > 0 {
		return ls[0]
	}
	return nil
}

// String returns a string parameter.
func (r *Request) String(name string) (string, bool) {
	v, ok := r.Params[name]
	if !ok || v.Type != core.TypeString {
		return "", false
	}
	return v.String(), true
}

// StringOr returns a string parameter or def when absent.
func (r *Request) StringOr(name, def string) string {
	if s, ok := r.String(name); ok {
		return s
	}
	return def
}

// Number returns a number parameter.
func (r *Request) Number(name string) (float64, bool) {
	v, ok := r.Params[name]
	if !ok || v.Type != core.TypeNumber {
		return 0, false
	}
	return v.Number(), true
}

// Strings returns a string array parameter.
func (r *Request) Strings(name string) []string {
	v, ok := r.Params[name]
	if !ok {
		return nil
	}
	return v.Strings()
}
