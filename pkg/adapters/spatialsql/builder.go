package spatialsql

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// FieldTypePrefix prefixes layer metadata keys that record column types,
// e.g. "type:population" = "bigint".
const FieldTypePrefix = "type:"

const defaultSegments = 5

var (
	qGeom = adapter.QuoteIdent(GeometryColumn)
	tGeom = "t." + qGeom
)

var predicateFunctions = map[string]string{
	"intersects": "ST_Intersects",
	"contains":   "ST_Contains",
	"within":     "ST_Within",
	"equals":     "ST_Equals",
	"touches":    "ST_Touches",
	"overlaps":   "ST_Overlaps",
	"crosses":    "ST_Crosses",
	"disjoint":   "ST_Disjoint",
}

// Builder renders requests against tables in one schema.
type Builder struct {
	Dialect *Dialect
	Schema  string
}

// Statement is one rendered operation.
type Statement struct {
	Table string
	Query string
	CRS   string
	Kind  core.LayerKind
	// Family, when set, is the geometry family the output must have.
	Family core.GeometryFamily
}

// SQL returns the statement materializing the output table.
func (s *Statement) SQL() string {
	return "CREATE TABLE " + s.Table + " AS " + s.Query
}

type renderer func(b *Builder, req *adapter.Request, st *Statement) error

var renderers = map[core.Operation]renderer{
	core.OpWarpReproject:          renderWarp,
	core.OpAggregate:              renderAggregate,
	core.OpBuffer:                 renderBuffer,
	core.OpDissolve:               renderDissolve,
	core.OpFieldCalculator:        renderFieldCalculator,
	core.OpGeometryByExpression:   renderGeometryByExpression,
	core.OpFixGeometries:          renderFixGeometries,
	core.OpJoinByLocation:         renderJoin,
	core.OpMergeVectorLayers:      renderMerge,
	core.OpReprojectLayer:         renderReproject,
	core.OpClip:                   renderClip,
	core.OpIntersection:           renderIntersection,
	core.OpJoinByLocationSummary:  renderJoinSummary,
	core.OpStatisticsByCategories: renderStatistics,
}

// Build renders the statement creating the output layer of req.
func (b *Builder) Build(req *adapter.Request) (*Statement, error) {
	render, ok := renderers[req.Operation]
	if !ok {
		return nil, adapter.Unsupported("operation %s", req.Operation)
	}
	st := &Statement{Table: b.Table(req.OutputID), Kind: core.LayerKindVector}
	if err := render(b, req, st); err != nil {
		return nil, err
	}
	st.CRS = core.NormalizeCRS(st.CRS)
	return st, nil
}

// Table returns the qualified table name of a layer ID.
func (b *Builder) Table(id string) string {
	return adapter.QualifiedName(b.Schema, id)
}

func (b *Builder) source(l *core.Layer) string {
	if l.Location != "" {
		return l.Location
	}
	return b.Table(l.ID)
}

// geometry returns the geometry column of alias moved from the layer's CRS
// into crs.
func (b *Builder) geometry(alias string, l *core.Layer, crs string) (string, error) {
	col := alias + "." + qGeom
	from, to := core.NormalizeCRS(l.CRS), core.NormalizeCRS(crs)
	if from == "" || to == "" || from == to {
		return col, nil
	}
	f, okFrom := core.EPSGCode(from)
	t, okTo := core.EPSGCode(to)
	if !okFrom || !okTo {
		return "", adapter.Unsupported("reprojection from %s to %s", from, to)
	}
	return b.Dialect.Transform(col, f, t), nil
}

func vectorInput(req *adapter.Request, param string) (*core.Layer, error) {
	l := req.Input(param)
	if l == nil {
		return nil, adapter.Failure(nil, "no layer bound to %s", param)
	}
	if l.Kind == core.LayerKindRaster {
		return nil, adapter.Unsupported("%s must be a vector layer, got %s", param, l.Kind)
	}
	return l, nil
}

func columns(alias string, fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, alias+"."+adapter.QuoteIdent(f))
	}
	return out
}

func without(fields []string, drop string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func list(parts ...string) string { return strings.Join(parts, ", ") }

func as(expr, name string) string { return expr + " AS " + adapter.QuoteIdent(name) }

func predicate(name string) (string, error) {
	fn, ok := predicateFunctions[strings.ToLower(name)]
	if !ok {
		return "", adapter.Unsupported("predicate %q", name)
	}
	return fn, nil
}

var numericTypes = map[string]bool{
	"smallint": true, "integer": true, "bigint": true, "int": true,
	"int2": true, "int4": true, "int8": true, "tinyint": true, "hugeint": true,
	"utinyint": true, "usmallint": true, "uinteger": true, "ubigint": true,
	"real": true, "float": true, "float4": true, "float8": true,
	"double": true, "double precision": true,
}

// IsNumeric reports whether the recorded column type of a field is numeric.
func IsNumeric(l *core.Layer, field string) bool {
	t := strings.ToLower(strings.TrimSpace(l.Metadata[FieldTypePrefix+field]))
	return numericTypes[t] || strings.HasPrefix(t, "numeric") || strings.HasPrefix(t, "decimal")
}

func numericFields(l *core.Layer) []string {
	var out []string
	for _, f := range l.Fields {
		if IsNumeric(l, f) {
			out = append(out, f)
		}
	}
	return out
}

func renderBuffer(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	distance, _ := req.Number(core.ParamDistance)
	if distance <= 0 {
		return adapter.Unsupported("buffer distance %g: only positive distances are supported", distance)
	}
	segments := defaultSegments
	if s, ok := req.Number("SEGMENTS"); ok && s >= 1 {
		segments = int(s)
	}
	g := b.Dialect.Buffer(tGeom, distance, segments, req.StringOr("END_CAP_STYLE", "round"))
	if req.StringOr("DISSOLVE", "false") == "true" {
		st.Query = fmt.Sprintf("SELECT %s FROM %s t", as(fmt.Sprintf(b.Dialect.UnionAgg, g), GeometryColumn), b.source(src))
	} else {
		cols := append(columns("t", src.Fields), as(g, GeometryColumn))
		st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	}
	st.CRS = src.CRS
	return nil
}

func renderDissolve(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	union := as(fmt.Sprintf(b.Dialect.UnionAgg, tGeom), GeometryColumn)
	if field, ok := req.String("FIELD"); ok && field != "" {
		if !contains(src.Fields, field) {
			return adapter.Failure(nil, "field %q not found in %s", field, src.ID)
		}
		col := "t." + adapter.QuoteIdent(field)
		st.Query = fmt.Sprintf("SELECT %s FROM %s t GROUP BY %s", list(col, union), b.source(src), col)
	} else {
		st.Query = fmt.Sprintf("SELECT %s FROM %s t", union, b.source(src))
	}
	st.CRS = src.CRS
	return nil
}

func renderFixGeometries(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	cols := append(columns("t", src.Fields), as("ST_MakeValid("+tGeom+")", GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	st.CRS = src.CRS
	return nil
}

func renderMerge(b *Builder, req *adapter.Request, st *Statement) error {
	layers := req.Inputs[core.ParamLayers]
	if len(layers) == 0 {
		return adapter.Failure(nil, "no layers to merge")
	}
	crs := core.NormalizeCRS(req.StringOr("CRS", layers[0].CRS))

	var fields []string
	for _, l := range layers {
		for _, f := range l.Fields {
			if f != "layer" && !contains(fields, f) {
				fields = append(fields, f)
			}
		}
	}
	branches := make([]string, 0, len(layers))
	for _, l := range layers {
		if l.Kind == core.LayerKindRaster {
			return adapter.Unsupported("%s must be a vector layer, got %s", core.ParamLayers, l.Kind)
		}
		cols := make([]string, 0, len(fields)+2)
		for _, f := range fields {
			if contains(l.Fields, f) {
				cols = append(cols, "t."+adapter.QuoteIdent(f))
			} else {
				cols = append(cols, as("NULL", f))
			}
		}
		name := l.Name
		if name == "" {
			name = l.ID
		}
		g, err := b.geometry("t", l, crs)
		if err != nil {
			return err
		}
		cols = append(cols, as(quoteLiteral(name), "layer"), as(g, GeometryColumn))
		branches = append(branches, fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(l)))
	}
	st.Query = strings.Join(branches, " UNION ALL ")
	st.CRS = crs
	return nil
}

func renderReproject(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	target := core.NormalizeCRS(req.StringOr(core.ParamTargetCRS, core.DefaultCRS))
	g, err := b.geometry("t", src, target)
	if err != nil {
		return err
	}
	cols := append(columns("t", src.Fields), as(g, GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	st.CRS = target
	return nil
}

func renderClip(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	overlay, err := vectorInput(req, core.ParamOverlay)
	if err != nil {
		return err
	}
	og, err := b.geometry("o", overlay, src.CRS)
	if err != nil {
		return err
	}
	mask := fmt.Sprintf("(SELECT %s FROM %s o) c", as(fmt.Sprintf(b.Dialect.UnionAgg, og), GeometryColumn), b.source(overlay))
	cols := append(columns("t", src.Fields), as(fmt.Sprintf("ST_Intersection(%s, c.%s)", tGeom, qGeom), GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t JOIN %s ON ST_Intersects(%s, c.%s)",
		list(cols...), b.source(src), mask, tGeom, qGeom)
	st.CRS = src.CRS
	return nil
}

// renamed lists "alias.field AS name" for fields copied next to taken names.
// A clash without a prefix gets a "_2" suffix.
func renamed(alias string, fields []string, prefix string, taken []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name := prefix + f
		if prefix == "" && contains(taken, name) {
			name = f + "_2"
		}
		out = append(out, as(alias+"."+adapter.QuoteIdent(f), name))
	}
	return out
}

func prefixed(fields []string, prefix string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = prefix + f
	}
	return out
}

func renderIntersection(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	overlay, err := vectorInput(req, core.ParamOverlay)
	if err != nil {
		return err
	}
	og, err := b.geometry("o", overlay, src.CRS)
	if err != nil {
		return err
	}
	inPrefix, _ := req.String("INPUT_FIELDS_PREFIX")
	ovPrefix, _ := req.String("OVERLAY_FIELDS_PREFIX")

	cols := renamed("t", src.Fields, inPrefix, nil)
	cols = append(cols, renamed("o", overlay.Fields, ovPrefix, prefixed(src.Fields, inPrefix))...)
	cols = append(cols, as(fmt.Sprintf("ST_Intersection(%s, %s)", tGeom, og), GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t JOIN %s o ON ST_Intersects(%s, %s)",
		list(cols...), b.source(src), b.source(overlay), tGeom, og)
	st.CRS = src.CRS
	return nil
}

func renderFieldCalculator(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	name, _ := req.String("FIELD_NAME")
	formula, _ := req.String("FORMULA")
	expr, err := TranslateExpression(formula, b.Dialect)
	if err != nil {
		return err
	}
	cols := columns("t", without(src.Fields, name))
	cols = append(cols,
		as(fmt.Sprintf("CAST((%s) AS %s)", expr, b.Dialect.Type(req.StringOr("FIELD_TYPE", "float"))), name),
		tGeom)
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	st.CRS = src.CRS
	return nil
}

func renderGeometryByExpression(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	source, _ := req.String("EXPRESSION")
	expr, err := TranslateExpression(source, b.Dialect)
	if err != nil {
		return err
	}
	cols := append(columns("t", src.Fields), as("("+expr+")", GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	st.CRS = src.CRS
	st.Family = familyOf(req.StringOr("OUTPUT_GEOMETRY", "polygon"))
	return nil
}

func familyOf(s string) core.GeometryFamily {
	switch strings.ToLower(s) {
	case "line":
		return core.FamilyLine
	case "point":
		return core.FamilyPoint
	default:
		return core.FamilyPolygon
	}
}

// groupExpression resolves GROUP_BY to a column or a translated expression.
func (b *Builder) groupExpression(src *core.Layer, groupBy string) (string, error) {
	if name := strings.Trim(groupBy, `"`); contains(src.Fields, name) {
		return "t." + adapter.QuoteIdent(name), nil
	}
	return TranslateExpression(groupBy, b.Dialect)
}

func renderAggregate(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	var cols []string
	groupBy := strings.TrimSpace(req.StringOr("GROUP_BY", ""))
	if groupBy != "" {
		g, err := b.groupExpression(src, groupBy)
		if err != nil {
			return err
		}
		cols = append(cols, as(g, "group"))
	}
	for _, s := range req.Strings(core.ParamAggregates) {
		a := catalog.ParseAggregate(s)
		value := "1"
		if a.Field != "" {
			value = "t." + adapter.QuoteIdent(a.Field)
		}
		expr, err := b.Dialect.Aggregate(a.Function, value)
		if err != nil {
			return err
		}
		cols = append(cols, as(expr, a.OutputField()))
	}
	cols = append(cols, as(fmt.Sprintf(b.Dialect.CollectAgg, tGeom), GeometryColumn))
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	if groupBy != "" {
		st.Query += " GROUP BY 1"
	}
	st.CRS = src.CRS
	return nil
}

func renderJoin(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	join, err := vectorInput(req, core.ParamJoin)
	if err != nil {
		return err
	}
	fn, err := predicate(req.StringOr("PREDICATE", "intersects"))
	if err != nil {
		return err
	}
	jg, err := b.geometry("j", join, src.CRS)
	if err != nil {
		return err
	}
	prefix, _ := req.String("PREFIX")

	cols := columns("t", src.Fields)
	cols = append(cols, renamed("j", join.Fields, prefix, src.Fields)...)
	cols = append(cols, tGeom)
	st.Query = fmt.Sprintf("SELECT %s FROM %s t LEFT JOIN %s j ON %s(%s, %s)",
		list(cols...), b.source(src), b.source(join), fn, tGeom, jg)
	st.CRS = src.CRS
	return nil
}

// defaultSummaries are computed when a join summary names none.
var defaultSummaries = []string{"count", "min", "max", "sum", "mean"}

func renderJoinSummary(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	join, err := vectorInput(req, core.ParamJoin)
	if err != nil {
		return err
	}
	fn, err := predicate(req.StringOr("PREDICATE", "intersects"))
	if err != nil {
		return err
	}
	jg, err := b.geometry("j", join, src.CRS)
	if err != nil {
		return err
	}
	summaries := req.Strings(core.ParamSummaries)
	if len(summaries) == 0 {
		summaries = defaultSummaries
	}
	fields := req.Strings("JOIN_FIELDS")
	if len(fields) == 0 {
		fields = numericFields(join)
	}

	cols := columns("t", src.Fields)
	for _, field := range fields {
		for _, s := range summaries {
			s = strings.ToLower(s)
			agg, err := b.Dialect.Aggregate(s, "j."+adapter.QuoteIdent(field))
			if err != nil {
				return err
			}
			sub := fmt.Sprintf("(SELECT %s FROM %s j WHERE %s(%s, %s))", agg, b.source(join), fn, tGeom, jg)
			cols = append(cols, as(sub, field+"_"+s))
		}
	}
	cols = append(cols, tGeom)
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	st.CRS = src.CRS
	return nil
}

var (
	numericStatistics = []string{"count_distinct", "count_missing", "min", "max", "range", "sum", "mean", "median", "stddev", "majority"}
	textStatistics    = []string{"count_distinct", "count_missing", "min", "max"}
)

func renderStatistics(b *Builder, req *adapter.Request, st *Statement) error {
	src, err := vectorInput(req, core.ParamInput)
	if err != nil {
		return err
	}
	categories := columns("t", req.Strings("CATEGORIES_FIELD_NAME"))
	cols := append(append([]string(nil), categories...), as("count(*)", "count"))
	if valueField, ok := req.String("VALUES_FIELD_NAME"); ok && valueField != "" {
		stats := textStatistics
		if IsNumeric(src, valueField) {
			stats = numericStatistics
		}
		value := "t." + adapter.QuoteIdent(valueField)
		for _, s := range stats {
			expr, err := b.Dialect.Aggregate(s, value)
			if err != nil {
				return err
			}
			cols = append(cols, as(expr, s))
		}
	}
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", list(cols...), b.source(src))
	if len(categories) > 0 {
		st.Query += " GROUP BY " + list(categories...)
	}
	st.CRS = src.CRS
	return nil
}

func renderWarp(b *Builder, req *adapter.Request, st *Statement) error {
	src := req.Input(core.ParamInput)
	if src == nil {
		return adapter.Failure(nil, "no layer bound to %s", core.ParamInput)
	}
	if b.Dialect.WarpRaster == nil {
		return adapter.Unsupported("raster reprojection on %s", b.Dialect.Name)
	}
	target := core.NormalizeCRS(req.StringOr(core.ParamTargetCRS, core.DefaultCRS))
	to, ok := core.EPSGCode(target)
	if !ok {
		return adapter.Unsupported("target CRS %s", target)
	}
	from, _ := core.EPSGCode(req.StringOr("SOURCE_CRS", src.CRS))
	rast, err := b.Dialect.WarpRaster("t."+adapter.QuoteIdent(RasterColumn), from, to, req.StringOr("RESAMPLING", "nearest"))
	if err != nil {
		return err
	}
	st.Query = fmt.Sprintf("SELECT %s FROM %s t", as(rast, RasterColumn), b.source(src))
	st.CRS = target
	st.Kind = core.LayerKindRaster
	return nil
}
