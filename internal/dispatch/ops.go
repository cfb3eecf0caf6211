package dispatch

import (
	"fmt"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Op is the typed form of a validated request. The set of implementations is
// closed: one struct per catalog operation.
type Op interface {
	Operation() core.Operation
}

// Optional numbers are pointers; nil means the caller left them out.

type WarpReproject struct {
	Input      string
	SourceCRS  string
	TargetCRS  string
	Resampling string
}

type Aggregate struct {
	Input      string
	GroupBy    string
	Aggregates []catalog.Aggregate
}

type Buffer struct {
	Input       string
	Distance    float64
	Segments    *float64
	EndCapStyle string
	Dissolve    bool
}

type Dissolve struct {
	Input string
	Field string
}

type FieldCalculator struct {
	Input     string
	FieldName string
	Formula   string
	FieldType string
}

type GeometryByExpression struct {
	Input          string
	Expression     string
	OutputGeometry string
}

type FixGeometries struct {
	Input string
}

type JoinByLocation struct {
	Input     string
	Join      string
	Predicate string
	Prefix    string
}

type MergeVectorLayers struct {
	Layers []string
	CRS    string
}

type ReprojectLayer struct {
	Input     string
	TargetCRS string
}

type Clip struct {
	Input   string
	Overlay string
}

type Intersection struct {
	Input         string
	Overlay       string
	InputPrefix   string
	OverlayPrefix string
}

type JoinByLocationSummary struct {
	Input      string
	Join       string
	Predicate  string
	Summaries  []string
	JoinFields []string
}

type StatisticsByCategories struct {
	Input      string
	Categories []string
	ValueField string
}

func (WarpReproject) Operation() core.Operation          { return core.OpWarpReproject }
func (Aggregate) Operation() core.Operation              { return core.OpAggregate }
func (Buffer) Operation() core.Operation                 { return core.OpBuffer }
func (Dissolve) Operation() core.Operation               { return core.OpDissolve }
func (FieldCalculator) Operation() core.Operation        { return core.OpFieldCalculator }
func (GeometryByExpression) Operation() core.Operation   { return core.OpGeometryByExpression }
func (FixGeometries) Operation() core.Operation          { return core.OpFixGeometries }
func (JoinByLocation) Operation() core.Operation         { return core.OpJoinByLocation }
func (MergeVectorLayers) Operation() core.Operation      { return core.OpMergeVectorLayers }
func (ReprojectLayer) Operation() core.Operation         { return core.OpReprojectLayer }
func (Clip) Operation() core.Operation                   { return core.OpClip }
func (Intersection) Operation() core.Operation           { return core.OpIntersection }
func (JoinByLocationSummary) Operation() core.Operation  { return core.OpJoinByLocationSummary }
func (StatisticsByCategories) Operation() core.Operation { return core.OpStatisticsByCategories }

// Bind converts a validated request into its variant.
func Bind(req *core.ValidatedRequest) (Op, error) {
	p := params{req}
	switch req.Operation() {
	case core.OpWarpReproject:
		return WarpReproject{
			Input:      p.str(core.ParamInput),
			SourceCRS:  p.str("SOURCE_CRS"),
			TargetCRS:  p.crs(),
			Resampling: p.str("RESAMPLING"),
		}, nil
	case core.OpAggregate:
		var aggs []catalog.Aggregate
		for _, s := range p.strs(core.ParamAggregates) {
			aggs = append(aggs, catalog.ParseAggregate(s))
		}
		return Aggregate{Input: p.str(core.ParamInput), GroupBy: p.str("GROUP_BY"), Aggregates: aggs}, nil
	case core.OpBuffer:
		dist := core.DefaultBufferDistance
		if d, ok := p.num(core.ParamDistance); ok {
			dist = *d
		}
		segs, _ := p.num("SEGMENTS")
		return Buffer{
			Input:       p.str(core.ParamInput),
			Distance:    dist,
			Segments:    segs,
			EndCapStyle: p.str("END_CAP_STYLE"),
			Dissolve:    p.str("DISSOLVE") == "true",
		}, nil
	case core.OpDissolve:
		return Dissolve{Input: p.str(core.ParamInput), Field: p.str("FIELD")}, nil
	case core.OpFieldCalculator:
		return FieldCalculator{
			Input:     p.str(core.ParamInput),
			FieldName: p.str("FIELD_NAME"),
			Formula:   p.str("FORMULA"),
			FieldType: p.str("FIELD_TYPE"),
		}, nil
	case core.OpGeometryByExpression:
		return GeometryByExpression{
			Input:          p.str(core.ParamInput),
			Expression:     p.str("EXPRESSION"),
			OutputGeometry: p.str("OUTPUT_GEOMETRY"),
		}, nil
	case core.OpFixGeometries:
		return FixGeometries{Input: p.str(core.ParamInput)}, nil
	case core.OpJoinByLocation:
		return JoinByLocation{
			Input:     p.str(core.ParamInput),
			Join:      p.str(core.ParamJoin),
			Predicate: p.str("PREDICATE"),
			Prefix:    p.str("PREFIX"),
		}, nil
	case core.OpMergeVectorLayers:
		return MergeVectorLayers{Layers: p.strs(core.ParamLayers), CRS: p.str("CRS")}, nil
	case core.OpReprojectLayer:
		return ReprojectLayer{Input: p.str(core.ParamInput), TargetCRS: p.crs()}, nil
	case core.OpClip:
		return Clip{Input: p.str(core.ParamInput), Overlay: p.str(core.ParamOverlay)}, nil
	case core.OpIntersection:
		return Intersection{
			Input:         p.str(core.ParamInput),
			Overlay:       p.str(core.ParamOverlay),
			InputPrefix:   p.str("INPUT_FIELDS_PREFIX"),
			OverlayPrefix: p.str("OVERLAY_FIELDS_PREFIX"),
		}, nil
	case core.OpJoinByLocationSummary:
		return JoinByLocationSummary{
			Input:      p.str(core.ParamInput),
			Join:       p.str(core.ParamJoin),
			Predicate:  p.str("PREDICATE"),
			Summaries:  p.strs(core.ParamSummaries),
			JoinFields: p.strs("JOIN_FIELDS"),
		}, nil
	case core.OpStatisticsByCategories:
		return StatisticsByCategories{
			Input:      p.str(core.ParamInput),
			Categories: p.strs("CATEGORIES_FIELD_NAME"),
			ValueField: p.str("VALUES_FIELD_NAME"),
		}, nil
	}
	return nil, fmt.Errorf("dispatch: no variant for operation %q", req.Operation())
}

type params struct {
	req *core.ValidatedRequest
}

func (p params) str(name string) string {
	v, _ := p.req.Param(name)
	return v.String()
}

func (p params) num(name string) (*float64, bool) {
	v, ok := p.req.Param(name)
	if !ok {
		return nil, false
	}
	f := v.Number()
	return &f, true
}

func (p params) strs(name string) []string {
	v, ok := p.req.Param(name)
	if !ok {
		return nil
	}
	return v.Strings()
}

func (p params) crs() string {
	if s := p.str(core.ParamTargetCRS); s != "" {
		return s
	}
	return core.DefaultCRS
}

// repairable lists the variants whose engine calls are retried once after a
// fix-geometries pass on an invalid-geometry failure.
func repairable(op Op) bool {
	switch op.(type) {
	case Buffer, Dissolve, Clip, Intersection, GeometryByExpression:
		return true
	}
	return false
}

// requiresVector lists the reference parameters whose concrete layers must be
// vector layers at dispatch time.
func requiresVector(op Op) []string {
	switch op.(type) {
	case JoinByLocation, JoinByLocationSummary:
		return []string{core.ParamInput, core.ParamJoin}
	case Clip:
		return []string{core.ParamInput, core.ParamOverlay}
	}
	return nil
}

// aggregateFunctions returns the function names an operation asks for.
func aggregateFunctions(op Op) (param string, fns []string) {
	switch o := op.(type) {
	case Aggregate:
		for _, a := range o.Aggregates {
			fns = append(fns, a.Function)
		}
		return core.ParamAggregates, fns
	case JoinByLocationSummary:
		return core.ParamSummaries, o.Summaries
	}
	return "", nil
}
