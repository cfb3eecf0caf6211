// Package dispatch executes validated requests against an engine adapter and
// records successful outputs in the session's layer store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/layerstore"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// DefaultTimeout bounds a single operation, repair pass and retry included.
const DefaultTimeout = 5 * time.Minute

// Dispatcher routes validated requests to an engine.
type Dispatcher struct {
	engine  adapter.Engine
	store   *layerstore.Store
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger (nil keeps the discard logger).
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTimeout sets the per-operation timeout. Non-positive values keep the default.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithIDGenerator replaces the generator used for unnamed outputs.
func WithIDGenerator(f func() string) Option {
	return func(d *Dispatcher) { d.newID = f }
}

// New creates a dispatcher writing into store.
func New(engine adapter.Engine, store *layerstore.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		timeout: DefaultTimeout,
		newID:   adapter.NewLayerID,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Timeout returns the configured per-operation timeout.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Dispatch runs req with the configured timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, req *core.ValidatedRequest) core.Result {
	return d.DispatchTimeout(ctx, req, d.timeout)
}

// DispatchTimeout runs req with an explicit timeout. Failures never mutate
// the store; a reserved output identifier is abandoned with the failure.
func (d *Dispatcher) DispatchTimeout(ctx context.Context, req *core.ValidatedRequest, timeout time.Duration) core.Result {
	start := time.Now()
	res := d.dispatch(ctx, req, timeout)
	res.Duration = time.Since(start)
	if res.Err != nil && req.ID() != "" {
		d.store.Abandon(req.ID(), res.Err)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req *core.ValidatedRequest, timeout time.Duration) core.Result {
	op, err := Bind(req)
	if err != nil {
		return core.Failed(req, &core.OperationError{Kind: core.KindEngineFailure, Err: err, Message: err.Error()})
	}

	inputs, oe := d.inputs(req)
	if oe != nil {
		return core.Failed(req, oe)
	}
	if oe := check(op, inputs); oe != nil {
		return core.Failed(req, oe)
	}

	outputID := req.ID()
	if outputID == "" {
		outputID = d.newID()
	}
	ereq := &adapter.Request{
		Operation:   op.Operation(),
		AlgorithmID: op.Operation().AlgorithmID(),
		Params:      engineParams(req, op),
		Inputs:      inputs,
		OutputID:    outputID,
	}

	if timeout <= 0 {
		timeout = d.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := d.logger.With(slog.String("operation", string(op.Operation())), slog.String("output", outputID))
	layer, attempts, repaired, err := d.execute(ctx, log, op, ereq)
	if err != nil {
		res := core.Failed(req, classify(err))
		res.Attempts = attempts
		res.Repaired = repaired
		return res
	}

	layer.ID = outputID
	if err := d.store.Put(outputID, layer); err != nil {
		d.discard(context.WithoutCancel(ctx), layer)
		oe, ok := core.AsOperationError(err)
		if !ok {
			oe = &core.OperationError{Kind: core.KindEngineFailure, Err: err}
		}
		return core.Failed(req, oe)
	}
	stored, _ := d.store.Get(outputID)
	log.Debug("operation succeeded", slog.Int("attempts", attempts), slog.Bool("repaired", repaired))
	return core.Result{
		RequestID: req.ID(),
		Operation: string(op.Operation()),
		Status:    core.StatusSuccess,
		Layer:     stored,
		Attempts:  attempts,
		Repaired:  repaired,
	}
}

// inputs fetches the concrete layers of every reference parameter.
func (d *Dispatcher) inputs(req *core.ValidatedRequest) (map[string][]*core.Layer, *core.OperationError) {
	out := make(map[string][]*core.Layer)
	for param, ids := range req.References() {
		for _, id := range ids {
			l, err := d.store.Get(id)
			if err != nil {
				oe, ok := core.AsOperationError(err)
				if !ok {
					oe = core.Errorf(core.KindDanglingReference, "%v", err)
				}
				c := *oe
				c.Param = param
				return nil, &c
			}
			out[param] = append(out[param], l)
		}
	}
	return out, nil
}

// check applies the per-operation policies that must hold before any engine call.
func check(op Op, inputs map[string][]*core.Layer) *core.OperationError {
	for _, param := range requiresVector(op) {
		for _, l := range inputs[param] {
			if l.Kind != core.LayerKindVector {
				return core.TypeMismatch(op.Operation(), param, "vector layer", fmt.Sprintf("%s layer %q", l.Kind, l.ID))
			}
		}
	}

	if param, fns := aggregateFunctions(op); len(fns) > 0 {
		for _, fn := range fns {
			if !catalog.IsAggregateFunction(fn) {
				return &core.OperationError{
					Kind:      core.KindUnsupportedAggregateFunction,
					Operation: string(op.Operation()),
					Param:     param,
					Message:   fmt.Sprintf("%q is not a supported aggregate function", fn),
				}
			}
		}
	}

	if _, ok := op.(MergeVectorLayers); ok {
		return checkMergeFamilies(inputs[core.ParamLayers])
	}
	return nil
}

// checkMergeFamilies requires one geometry family across merge inputs. Layers
// whose family is unknown (empty layers) merge with any family.
func checkMergeFamilies(layers []*core.Layer) *core.OperationError {
	var want core.GeometryFamily
	var first *core.Layer
	for _, l := range layers {
		if l.Kind != core.LayerKindVector {
			return core.TypeMismatch(core.OpMergeVectorLayers, core.ParamLayers, "vector layer", fmt.Sprintf("%s layer %q", l.Kind, l.ID))
		}
		fam := l.GeometryType.Family()
		if fam == core.FamilyUnknown {
			continue
		}
		if first == nil {
			want, first = fam, l
			continue
		}
		if fam != want {
			return &core.OperationError{
				Kind:      core.KindGeometryTypeMismatch,
				Operation: string(core.OpMergeVectorLayers),
				Param:     core.ParamLayers,
				Expected:  fmt.Sprintf("%s geometries (as in %q)", want, first.ID),
				Actual:    fmt.Sprintf("%s geometries in %q", fam, l.ID),
			}
		}
	}
	return nil
}

// engineParams returns the non-reference parameters the engine receives.
func engineParams(req *core.ValidatedRequest, op Op) map[string]core.Value {
	out := make(map[string]core.Value)
	for name, v := range req.Params() {
		if spec, ok := req.Contract().Param(name); ok && spec.IsReference() {
			continue
		}
		out[name] = v
	}
	switch o := op.(type) {
	case WarpReproject:
		out[core.ParamTargetCRS] = core.StringValue(o.TargetCRS)
	case ReprojectLayer:
		out[core.ParamTargetCRS] = core.StringValue(o.TargetCRS)
	case Buffer:
		out[core.ParamDistance] = core.NumberValue(o.Distance)
	}
	return out
}

// execute calls the engine, running one repair pass and one retry for
// repairable operations that fail on invalid geometry.
func (d *Dispatcher) execute(ctx context.Context, log *slog.Logger, op Op, req *adapter.Request) (*core.Layer, int, bool, error) {
	log.Debug("dispatching", slog.String("algorithm", req.AlgorithmID))
	layer, err := d.call(ctx, req)
	if err == nil {
		return layer, 1, false, nil
	}
	if !repairable(op) || adapter.CodeOf(err) != adapter.CodeInvalidGeometry {
		return nil, 1, false, err
	}

	log.Info("invalid geometry, repairing inputs", slog.String("error", err.Error()))
	repairedInputs, intermediates, rerr := d.repair(ctx, req)
	defer func() {
		for _, l := range intermediates {
			d.discard(context.WithoutCancel(ctx), l)
		}
	}()
	if rerr != nil {
		return nil, 1, true, rerr
	}

	retry := *req
	retry.Inputs = repairedInputs
	layer, err = d.call(ctx, &retry)
	if err != nil {
		return nil, 2, true, err
	}
	return layer, 2, true, nil
}

// repair runs fix-geometries on every vector input. The repaired layers are
// intermediates: they are never stored and the caller discards them.
func (d *Dispatcher) repair(ctx context.Context, req *adapter.Request) (map[string][]*core.Layer, []*core.Layer, error) {
	out := make(map[string][]*core.Layer, len(req.Inputs))
	var intermediates []*core.Layer
	for param, layers := range req.Inputs {
		for _, in := range layers {
			if in.Kind != core.LayerKindVector {
				out[param] = append(out[param], in)
				continue
			}
			fixed, err := d.call(ctx, &adapter.Request{
				Operation:   core.OpFixGeometries,
				AlgorithmID: core.OpFixGeometries.AlgorithmID(),
				Params:      map[string]core.Value{},
				Inputs:      map[string][]*core.Layer{core.ParamInput: {in}},
				OutputID:    d.newID(),
			})
			if err != nil {
				return nil, intermediates, fmt.Errorf("repairing %s: %w", in.ID, err)
			}
			intermediates = append(intermediates, fixed)
			out[param] = append(out[param], fixed)
		}
	}
	return out, intermediates, nil
}

type outcome struct {
	layer *core.Layer
	err   error
}

// call runs one engine invocation bounded by ctx. A layer that arrives after
// the deadline is discarded and never returned.
func (d *Dispatcher) call(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
	done := make(chan outcome, 1)
	go func() {
		l, err := d.engine.Execute(ctx, req)
		done <- outcome{l, err}
	}()

	select {
	case o := <-done:
		if o.err == nil && o.layer == nil {
			return nil, adapter.Failure(nil, "engine returned no layer for %s", req.AlgorithmID)
		}
		if o.err == nil && ctx.Err() != nil {
			d.discard(context.WithoutCancel(ctx), o.layer)
			return nil, ctx.Err()
		}
		return o.layer, o.err
	case <-ctx.Done():
		go func() {
			if o := <-done; o.err == nil && o.layer != nil {
				d.logger.Debug("discarding late layer", slog.String("layer", o.layer.ID))
				d.discard(context.WithoutCancel(ctx), o.layer)
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) discard(ctx context.Context, l *core.Layer) {
	if l == nil {
		return
	}
	dis, ok := d.engine.(adapter.Discarder)
	if !ok {
		return
	}
	if err := dis.Discard(ctx, l); err != nil {
		d.logger.Warn("failed to discard layer", slog.String("layer", l.ID), slog.String("error", err.Error()))
	}
}

// classify maps engine and context errors onto the taxonomy.
func classify(err error) *core.OperationError {
	if oe, ok := core.AsOperationError(err); ok {
		return oe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &core.OperationError{Kind: core.KindTimeout, Message: "operation timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &core.OperationError{Kind: core.KindEngineFailure, Message: "operation cancelled", Err: err}
	}
	kind := core.KindEngineFailure
	if adapter.CodeOf(err) == adapter.CodeInvalidGeometry {
		kind = core.KindInvalidGeometry
	}
	return &core.OperationError{Kind: kind, Message: err.Error(), Err: err}
}
