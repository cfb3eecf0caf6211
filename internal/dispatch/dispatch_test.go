package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/layerstore"
	"github.com/leapstack-labs/leapgis/internal/testutil"
	"github.com/leapstack-labs/leapgis/internal/validate"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

type fakeEngine struct {
	mu        sync.Mutex
	calls     []*adapter.Request
	discarded chan string
	handle    func(ctx context.Context, req *adapter.Request) (*core.Layer, error)
}

func newFakeEngine(handle func(ctx context.Context, req *adapter.Request) (*core.Layer, error)) *fakeEngine {
	return &fakeEngine{discarded: make(chan string, 16), handle: handle}
}

func (f *fakeEngine) Connect(context.Context, adapter.Config) error { return nil }
func (f *fakeEngine) Close() error                                  { return nil }

func (f *fakeEngine) Execute(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.handle != nil {
		return f.handle(ctx, req)
	}
	return echo(req), nil
}

func (f *fakeEngine) Discard(_ context.Context, l *core.Layer) error {
	f.discarded <- l.ID
	return nil
}

func (f *fakeEngine) ops() []core.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Operation, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Operation
	}
	return out
}

// echo produces a vector layer shaped like the first input.
func echo(req *adapter.Request) *core.Layer {
	l := &core.Layer{ID: req.OutputID, Kind: core.LayerKindVector, GeometryType: core.GeometryPolygon}
	for _, ins := range req.Inputs {
		if len(ins) > 0 {
			l.GeometryType = ins[0].GeometryType
			l.FeatureCount = ins[0].FeatureCount
		}
	}
	return l
}

func seededStore(t *testing.T) *layerstore.Store {
	t.Helper()
	s := layerstore.New()
	require.NoError(t, s.Put("parcels", &core.Layer{Kind: core.LayerKindVector, GeometryType: core.GeometryMultiPolygon, FeatureCount: 4}))
	require.NoError(t, s.Put("wells", &core.Layer{Kind: core.LayerKindVector, GeometryType: core.GeometryPoint, FeatureCount: 9}))
	require.NoError(t, s.Put("roads", &core.Layer{Kind: core.LayerKindVector, GeometryType: core.GeometryLineString}))
	require.NoError(t, s.Put("dem", &core.Layer{Kind: core.LayerKindRaster, BandCount: 1}))
	return s
}

func validated(t *testing.T, id, op string, params map[string]any) *core.ValidatedRequest {
	t.Helper()
	vr, err := validate.New(nil).Validate(core.Request{ID: id, Operation: op, Params: params})
	require.NoError(t, err)
	return vr
}

func TestBind_CoversCatalog(t *testing.T) {
	for _, c := range catalog.Default().List() {
		params := map[string]any{}
		for i := range c.Params {
			p := &c.Params[i]
			if !p.Required {
				continue
			}
			switch {
			case p.Type == core.TypeStringArray:
				params[p.Name] = []any{"count"}
			default:
				params[p.Name] = "x"
			}
		}
		vr, err := validate.New(nil).Validate(core.Request{Operation: string(c.Name), Params: params})
		require.NoError(t, err, c.Name)

		op, err := Bind(vr)
		require.NoError(t, err, c.Name)
		assert.Equal(t, c.Name, op.Operation())
	}
}

func TestDispatch_BufferDefaults(t *testing.T) {
	eng := newFakeEngine(nil)
	store := seededStore(t)
	d := New(eng, store, WithLogger(testutil.NewTestLogger(t)))

	res := d.Dispatch(context.Background(), validated(t, "", "native_buffer", map[string]any{"INPUT": "wells"}))
	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEqual(t, "wells", res.Layer.ID)
	assert.True(t, adapter.IsLayerID(res.Layer.ID))

	require.Len(t, eng.calls, 1)
	call := eng.calls[0]
	assert.Equal(t, "native:buffer", call.AlgorithmID)
	dist, ok := call.Number("DISTANCE")
	require.True(t, ok)
	assert.InDelta(t, 10.0, dist, 0)
	assert.Equal(t, "wells", call.Input("INPUT").ID)
	_, isParam := call.Params["INPUT"]
	assert.False(t, isParam, "references are passed as inputs, not params")

	_, ok = store.Lookup(res.Layer.ID)
	assert.True(t, ok)
}

func TestDispatch_ReprojectAlwaysSendsTargetCRS(t *testing.T) {
	eng := newFakeEngine(nil)
	d := New(eng, seededStore(t))

	res := d.Dispatch(context.Background(), validated(t, "wgs", "native_reprojectlayer", map[string]any{"INPUT": "roads"}))
	require.True(t, res.OK())
	assert.Equal(t, "wgs", res.Layer.ID)
	assert.Equal(t, "EPSG:4326", eng.calls[0].StringOr("TARGET_CRS", ""))
}

func TestDispatch_MergeGeometryMismatch(t *testing.T) {
	eng := newFakeEngine(nil)
	d := New(eng, seededStore(t))

	res := d.Dispatch(context.Background(), validated(t, "m", "native_mergevectorlayers", map[string]any{
		"LAYERS": []any{"parcels", "wells"},
	}))
	require.Equal(t, core.StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, core.KindGeometryTypeMismatch))
	assert.Equal(t, "m", res.Err.RequestID)
	assert.Empty(t, eng.calls, "engine must not be called")
}

func TestDispatch_MergeFoldsMultiTypes(t *testing.T) {
	store := seededStore(t)
	require.NoError(t, store.Put("lots", &core.Layer{Kind: core.LayerKindVector, GeometryType: core.GeometryPolygon}))
	d := New(newFakeEngine(nil), store)

	res := d.Dispatch(context.Background(), validated(t, "m", "native_mergevectorlayers", map[string]any{
		"LAYERS": []any{"parcels", "lots"},
	}))
	assert.True(t, res.OK(), "%v", res.Err)
}

func TestDispatch_MergeAcceptsUnknownGeometry(t *testing.T) {
	store := seededStore(t)
	require.NoError(t, store.Put("empty", &core.Layer{Kind: core.LayerKindVector, GeometryType: core.GeometryUnknown}))
	eng := newFakeEngine(nil)
	d := New(eng, store)

	res := d.Dispatch(context.Background(), validated(t, "m", "native_mergevectorlayers", map[string]any{
		"LAYERS": []any{"empty", "wells"},
	}))
	assert.True(t, res.OK(), "%v", res.Err)
	assert.Len(t, eng.calls, 1)

	// The known families still have to agree.
	res = d.Dispatch(context.Background(), validated(t, "m2", "native_mergevectorlayers", map[string]any{
		"LAYERS": []any{"empty", "wells", "parcels"},
	}))
	assert.True(t, errors.Is(res.Err, core.KindGeometryTypeMismatch))
	assert.Len(t, eng.calls, 1)
}

func TestDispatch_UnsupportedAggregate(t *testing.T) {
	eng := newFakeEngine(nil)
	d := New(eng, seededStore(t))

	res := d.Dispatch(context.Background(), validated(t, "", "native_aggregate", map[string]any{
		"INPUT":      "parcels",
		"AGGREGATES": []any{"sum:area", "geomean:area"},
	}))
	assert.True(t, errors.Is(res.Err, core.KindUnsupportedAggregateFunction))
	assert.Equal(t, "AGGREGATES", res.Err.Param)
	assert.Empty(t, eng.calls)

	res = d.Dispatch(context.Background(), validated(t, "", "qgis_joinbylocationsummary", map[string]any{
		"INPUT": "parcels", "JOIN": "wells", "SUMMARIES": []any{"mean", "mode"},
	}))
	assert.True(t, errors.Is(res.Err, core.KindUnsupportedAggregateFunction))
	assert.Empty(t, eng.calls)
}

func TestDispatch_RasterOverlayRejected(t *testing.T) {
	eng := newFakeEngine(nil)
	store := seededStore(t)
	d := New(eng, store)

	// The resolver normally catches this; the dispatcher rechecks concrete layers.
	res := d.Dispatch(context.Background(), validated(t, "c", "qgis_clip", map[string]any{"INPUT": "parcels", "OVERLAY": "dem"}))
	assert.True(t, errors.Is(res.Err, core.KindTypeMismatch))
	assert.Equal(t, "OVERLAY", res.Err.Param)
	assert.Empty(t, eng.calls)
	_, ok := store.Lookup("c")
	assert.False(t, ok)
}

func TestDispatch_RepairAndRetry(t *testing.T) {
	failures := 0
	eng := newFakeEngine(func(_ context.Context, req *adapter.Request) (*core.Layer, error) {
		if req.Operation == core.OpDissolve && req.Input("INPUT").ID == "parcels" {
			failures++
			return nil, adapter.InvalidGeometry("ring self-intersection")
		}
		return echo(req), nil
	})
	d := New(eng, seededStore(t), WithLogger(testutil.NewTestLogger(t)))

	res := d.Dispatch(context.Background(), validated(t, "dissolved", "native_dissolve", map[string]any{"INPUT": "parcels"}))
	require.True(t, res.OK(), "%v", res.Err)
	assert.True(t, res.Repaired)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, failures)
	assert.Equal(t, []core.Operation{core.OpDissolve, core.OpFixGeometries, core.OpDissolve}, eng.ops())

	fixed := eng.calls[1].OutputID
	assert.Equal(t, fixed, eng.calls[2].Input("INPUT").ID, "retry runs on the repaired layer")
	select {
	case id := <-eng.discarded:
		assert.Equal(t, fixed, id, "repaired intermediate is discarded")
	case <-time.After(time.Second):
		t.Fatal("intermediate was not discarded")
	}
}

func TestDispatch_SecondInvalidGeometrySurfaces(t *testing.T) {
	eng := newFakeEngine(func(_ context.Context, req *adapter.Request) (*core.Layer, error) {
		if req.Operation == core.OpBuffer {
			return nil, adapter.InvalidGeometry("still broken")
		}
		return echo(req), nil
	})
	store := seededStore(t)
	require.NoError(t, store.Reserve("b"))
	d := New(eng, store)

	res := d.Dispatch(context.Background(), validated(t, "b", "native_buffer", map[string]any{"INPUT": "parcels"}))
	require.Equal(t, core.StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, core.KindInvalidGeometry))
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []core.Operation{core.OpBuffer, core.OpFixGeometries, core.OpBuffer}, eng.ops())

	// The reservation is abandoned, not fulfilled.
	_, err := store.Get("b")
	assert.Error(t, err)
}

func TestDispatch_NonRepairableInvalidGeometry(t *testing.T) {
	eng := newFakeEngine(func(_ context.Context, req *adapter.Request) (*core.Layer, error) {
		return nil, adapter.InvalidGeometry("bad")
	})
	d := New(eng, seededStore(t))

	res := d.Dispatch(context.Background(), validated(t, "", "native_fieldcalculator", map[string]any{
		"INPUT": "parcels", "FIELD_NAME": "a", "FORMULA": "1",
	}))
	assert.True(t, errors.Is(res.Err, core.KindInvalidGeometry))
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, eng.calls, 1)
}

func TestDispatch_EngineFailureLeavesStoreUntouched(t *testing.T) {
	eng := newFakeEngine(func(context.Context, *adapter.Request) (*core.Layer, error) {
		return nil, adapter.Failure(errors.New("connection reset"), "postgis call failed")
	})
	store := seededStore(t)
	before := len(store.List())
	d := New(eng, store)

	res := d.Dispatch(context.Background(), validated(t, "x", "native_fixgeometries", map[string]any{"INPUT": "parcels"}))
	assert.True(t, errors.Is(res.Err, core.KindEngineFailure))
	assert.Contains(t, res.Err.Error(), "connection reset")
	assert.Len(t, store.List(), before)
}

func TestDispatch_TimeoutDiscardsLateLayer(t *testing.T) {
	release := make(chan struct{})
	eng := newFakeEngine(func(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
		<-release
		return echo(req), nil
	})
	store := seededStore(t)
	d := New(eng, store, WithTimeout(20*time.Millisecond))

	res := d.Dispatch(context.Background(), validated(t, "slow", "native_fixgeometries", map[string]any{"INPUT": "parcels"}))
	require.Equal(t, core.StatusFailed, res.Status)
	assert.True(t, errors.Is(res.Err, core.KindTimeout))

	close(release)
	select {
	case id := <-eng.discarded:
		assert.Equal(t, "slow", id)
	case <-time.After(2 * time.Second):
		t.Fatal("late layer was not discarded")
	}
	_, ok := store.Lookup("slow")
	assert.False(t, ok)
}

func TestDispatch_OutputCollision(t *testing.T) {
	eng := newFakeEngine(nil)
	d := New(eng, seededStore(t))

	res := d.Dispatch(context.Background(), validated(t, "wells", "native_fixgeometries", map[string]any{"INPUT": "parcels"}))
	assert.True(t, errors.Is(res.Err, core.KindDuplicateIdentifier))
	select {
	case id := <-eng.discarded:
		assert.Equal(t, "wells", id)
	case <-time.After(time.Second):
		t.Fatal("orphaned layer was not discarded")
	}
}

func TestDispatch_IDGenerator(t *testing.T) {
	n := 0
	d := New(newFakeEngine(nil), seededStore(t), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("Lgen%08d", n)
	}))
	res := d.Dispatch(context.Background(), validated(t, "", "native_fixgeometries", map[string]any{"INPUT": "parcels"}))
	require.True(t, res.OK())
	assert.Equal(t, "Lgen00000001", res.Layer.ID)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, core.KindTimeout, classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, core.KindInvalidGeometry, classify(adapter.InvalidGeometry("x")).Kind)
	assert.Equal(t, core.KindEngineFailure, classify(adapter.Unsupported("x")).Kind)
	assert.Equal(t, core.KindEngineFailure, classify(errors.New("x")).Kind)
	wrapped := fmt.Errorf("repairing L1: %w", adapter.InvalidGeometry("x"))
	assert.Equal(t, core.KindInvalidGeometry, classify(wrapped).Kind)
}
