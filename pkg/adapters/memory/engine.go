package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Engine implements adapter.Engine with every layer held in process memory.
type Engine struct {
	mu       sync.RWMutex
	datasets map[string]*dataset
	logger   *slog.Logger
}

var (
	_ adapter.Engine    = (*Engine)(nil)
	_ adapter.Importer  = (*Engine)(nil)
	_ adapter.Exporter  = (*Engine)(nil)
	_ adapter.Discarder = (*Engine)(nil)
)

// New creates a memory engine. The logger is optional.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{datasets: make(map[string]*dataset), logger: logger}
}

// Connect is a no-op: there is nothing to connect to.
func (e *Engine) Connect(_ context.Context, _ adapter.Config) error { return nil }

// Close drops every dataset.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets = make(map[string]*dataset)
	return nil
}

// Len returns the number of datasets held.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.datasets)
}

// handler runs one operation against resolved input datasets.
type handler func(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error)

var handlers = map[core.Operation]handler{
	core.OpWarpReproject:          warpReproject,
	core.OpAggregate:              aggregate,
	core.OpBuffer:                 buffer,
	core.OpDissolve:               dissolve,
	core.OpFieldCalculator:        fieldCalculator,
	core.OpGeometryByExpression:   geometryByExpression,
	core.OpFixGeometries:          fixGeometries,
	core.OpJoinByLocation:         joinByLocation,
	core.OpMergeVectorLayers:      mergeVectorLayers,
	core.OpReprojectLayer:         reprojectLayer,
	core.OpClip:                   clipLayer,
	core.OpIntersection:           intersection,
	core.OpJoinByLocationSummary:  joinByLocationSummary,
	core.OpStatisticsByCategories: statisticsByCategories,
}

// Execute runs one catalog operation.
func (e *Engine) Execute(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, ok := handlers[req.Operation]
	if !ok {
		return nil, adapter.Unsupported("operation %s", req.Operation)
	}
	in, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("executing", slog.String("algorithm", req.AlgorithmID), slog.String("output", req.OutputID))
	out, err := h(ctx, req, in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.id = req.OutputID
	return e.store(out), nil
}

// inputs holds the datasets bound to each reference parameter.
type inputs map[string][]*dataset

func (in inputs) one(param string) *dataset {
	if ds := in[param]; len(ds) > 0 {
		return ds[0]
	}
	return nil
}

func (e *Engine) resolve(req *adapter.Request) (inputs, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in := make(inputs, len(req.Inputs))
	for param, layers := range req.Inputs {
		for _, l := range layers {
			ds, ok := e.datasets[l.ID]
			if !ok {
				return nil, adapter.NotFound(l.ID)
			}
			in[param] = append(in[param], ds)
		}
	}
	return in, nil
}

func (e *Engine) store(ds *dataset) *core.Layer {
	e.mu.Lock()
	e.datasets[ds.id] = ds
	e.mu.Unlock()
	return ds.layer()
}

// Discard drops a dataset. Unknown layers are ignored.
func (e *Engine) Discard(_ context.Context, l *core.Layer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.datasets, l.ID)
	return nil
}

// Features returns a copy of a vector layer's features.
func (e *Engine) Features(id string) (*geojson.FeatureCollection, error) {
	e.mu.RLock()
	ds, ok := e.datasets[id]
	e.mu.RUnlock()
	if !ok {
		return nil, adapter.NotFound(id)
	}
	if ds.kind != core.LayerKindVector {
		return nil, fmt.Errorf("layer %q is a %s layer", id, ds.kind)
	}
	return cloneCollection(ds.fc), nil
}

// Load stores a feature collection as a vector layer. crs defaults to EPSG:4326.
func (e *Engine) Load(id, crs string, fc *geojson.FeatureCollection) *core.Layer {
	if crs == "" {
		crs = core.DefaultCRS
	}
	return e.store(newVector(id, crs, cloneCollection(fc), core.GeometryUnknown))
}

// LoadRaster stores raster metadata as a raster layer.
func (e *Engine) LoadRaster(id string, r Raster) *core.Layer {
	return e.store(&dataset{id: id, kind: core.LayerKindRaster, crs: r.CRS, raster: &r})
}
