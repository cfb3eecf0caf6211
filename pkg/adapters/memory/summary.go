package memory

import (
	"context"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/starlark"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// defaultSummaries are computed when a join summary names none.
var defaultSummaries = []string{"count", "min", "max", "sum", "mean"}

func aggregate(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	var aggs []catalog.Aggregate
	for _, s := range req.Strings(core.ParamAggregates) {
		aggs = append(aggs, catalog.ParseAggregate(s))
	}

	groupBy, err := groupKeyFunc(ctx, req.OutputID, strings.TrimSpace(req.StringOr("GROUP_BY", "")))
	if err != nil {
		return nil, err
	}
	keys := make(map[*geojson.Feature]any, len(src.fc.Features))
	for i, f := range src.fc.Features {
		v, err := groupBy(i, f)
		if err != nil {
			return nil, err
		}
		keys[f] = v
	}
	groups, order := groupFeatures(src.fc.Features, func(f *geojson.Feature) string { return groupKey(keys[f]) })

	out := geojson.NewFeatureCollection()
	for _, k := range order {
		members := groups[k]
		g := collect(featureGeometries(members))
		if g != nil {
			g = orb.Clone(g)
		}
		f := geojson.NewFeature(g)
		f.Properties = geojson.Properties{}
		if req.StringOr("GROUP_BY", "") != "" {
			f.Properties["group"] = keys[members[0]]
		}
		for _, a := range aggs {
			f.Properties[a.OutputField()] = summarize(a.Function, fieldValues(members, a.Field))
		}
		out.Append(f)
	}
	return newVector("", src.crs, out, src.gtype.Multi()), nil
}

// groupKeyFunc returns the grouping value of a feature: nothing, a field, or
// an expression result.
func groupKeyFunc(ctx context.Context, name, groupBy string) (func(int, *geojson.Feature) (any, error), error) {
	switch {
	case groupBy == "":
		return func(int, *geojson.Feature) (any, error) { return nil, nil }, nil
	case isFieldName(groupBy):
		field := strings.Trim(groupBy, `"`)
		return func(_ int, f *geojson.Feature) (any, error) { return f.Properties[field], nil }, nil
	}
	expr, err := starlark.Compile(groupBy)
	if err != nil {
		return nil, adapter.Failure(err, "invalid GROUP_BY expression")
	}
	ev := starlark.NewEvaluator(ctx, name)
	return func(i int, f *geojson.Feature) (any, error) {
		v, err := ev.Value(expr, starlark.Feature{Index: i, Attributes: f.Properties, Geometry: f.Geometry})
		if err != nil {
			return nil, adapter.Failure(err, "GROUP_BY failed")
		}
		return v, nil
	}, nil
}

// isFieldName accepts a bare identifier or a double-quoted name.
func isFieldName(s string) bool {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return !strings.Contains(s[1:len(s)-1], `"`)
	}
	for i, r := range s {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// fieldValues returns one value per feature. An empty field yields a
// placeholder per feature so count reports the feature count.
func fieldValues(fs []*geojson.Feature, field string) []any {
	out := make([]any, 0, len(fs))
	for _, f := range fs {
		if field == "" {
			out = append(out, true)
			continue
		}
		out = append(out, f.Properties[field])
	}
	return out
}

// relation reports whether a and b satisfy predicate. Points are related to
// polygons and to other points; other combinations are unsupported.
func relation(predicate string, a, b orb.Geometry) (bool, error) {
	if a == nil || b == nil {
		return predicate == "disjoint", nil
	}
	apts, aPoint := points(a)
	bpts, bPoint := points(b)

	var inside, equal bool
	switch {
	case aPoint && bPoint:
		equal = orb.Equal(a, b)
		for _, p := range apts {
			for _, q := range bpts {
				if p.Equal(q) {
					inside = true
				}
			}
		}
	case aPoint && isPolygonal(b):
		inside = anyInside(b, apts)
	case isPolygonal(a) && bPoint:
		inside = anyInside(a, bpts)
	default:
		return false, adapter.Unsupported("spatial join between %s and %s geometries", geometryName(a), geometryName(b))
	}

	switch predicate {
	case "", "intersects":
		return inside, nil
	case "disjoint":
		return !inside, nil
	case "equals":
		return equal, nil
	case "within":
		if aPoint && bPoint {
			return equal, nil
		}
		return aPoint && allInside(b, apts), nil
	case "contains":
		if aPoint && bPoint {
			return equal, nil
		}
		return bPoint && allInside(a, bpts), nil
	case "touches", "overlaps", "crosses":
		return false, nil
	}
	return false, adapter.Unsupported("predicate %q", predicate)
}

func anyInside(poly orb.Geometry, pts []orb.Point) bool {
	for _, p := range pts {
		if contains(poly, p) {
			return true
		}
	}
	return false
}

func allInside(poly orb.Geometry, pts []orb.Point) bool {
	for _, p := range pts {
		if !contains(poly, p) {
			return false
		}
	}
	return len(pts) > 0
}

// matches returns the features of join related to f.
func matches(predicate string, f *geojson.Feature, join []*geojson.Feature, move func(orb.Geometry) orb.Geometry) ([]*geojson.Feature, error) {
	var out []*geojson.Feature
	for _, j := range join {
		ok, err := relation(predicate, f.Geometry, move(j.Geometry))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func joinByLocation(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	join, err := vectorInput(in, core.ParamJoin)
	if err != nil {
		return nil, err
	}
	move, err := transform(join.crs, src.crs)
	if err != nil {
		return nil, err
	}
	predicate := req.StringOr("PREDICATE", "intersects")
	prefix, _ := req.String("PREFIX")

	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		found, err := matches(predicate, f, join.fc.Features, move)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			out.Append(cloneFeature(f))
			continue
		}
		for _, j := range found {
			c := cloneFeature(f)
			for k, v := range j.Properties {
				name := prefix + k
				if _, clash := c.Properties[name]; clash && prefix == "" {
					name = k + "_2"
				}
				c.Properties[name] = v
			}
			out.Append(c)
		}
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func joinByLocationSummary(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	join, err := vectorInput(in, core.ParamJoin)
	if err != nil {
		return nil, err
	}
	move, err := transform(join.crs, src.crs)
	if err != nil {
		return nil, err
	}
	predicate := req.StringOr("PREDICATE", "intersects")
	summaries := req.Strings(core.ParamSummaries)
	if len(summaries) == 0 {
		summaries = defaultSummaries
	}
	fields := req.Strings("JOIN_FIELDS")
	if len(fields) == 0 {
		fields = numericFields(join.fc)
	}

	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		found, err := matches(predicate, f, join.fc.Features, move)
		if err != nil {
			return nil, err
		}
		c := cloneFeature(f)
		for _, field := range fields {
			values := fieldValues(found, field)
			for _, fn := range summaries {
				fn = strings.ToLower(fn)
				c.Properties[field+"_"+fn] = summarize(fn, values)
			}
		}
		out.Append(c)
	}
	return newVector("", src.crs, out, src.gtype), nil
}

// numericFields lists fields holding at least one number and nothing but
// numbers or nulls.
func numericFields(fc *geojson.FeatureCollection) []string {
	var out []string
	for _, name := range geojsonio.FieldNames(fc) {
		numeric, seen := true, false
		for _, f := range fc.Features {
			v, ok := f.Properties[name]
			if !ok || v == nil {
				continue
			}
			if _, isNum := toFloat(v); !isNum {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			out = append(out, name)
		}
	}
	return out
}

var (
	numericStatistics = []string{"count", "count_distinct", "count_missing", "min", "max", "range", "sum", "mean", "median", "stddev", "minority", "majority"}
	textStatistics    = []string{"count", "count_distinct", "count_missing", "min", "max"}
)

func statisticsByCategories(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	categories := req.Strings("CATEGORIES_FIELD_NAME")
	valueField, _ := req.String("VALUES_FIELD_NAME")

	groups, order := groupFeatures(src.fc.Features, func(f *geojson.Feature) string {
		parts := make([]string, len(categories))
		for i, c := range categories {
			parts[i] = groupKey(f.Properties[c])
		}
		return strings.Join(parts, "\x1f")
	})

	stats := []string{"count"}
	if valueField != "" {
		stats = textStatistics
		for _, n := range numericFields(src.fc) {
			if n == valueField {
				stats = numericStatistics
			}
		}
	}

	out := geojson.NewFeatureCollection()
	for i, k := range order {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		members := groups[k]
		f := geojson.NewFeature(nil)
		f.Properties = geojson.Properties{}
		for _, c := range categories {
			f.Properties[c] = members[0].Properties[c]
		}
		values := fieldValues(members, valueField)
		for _, s := range stats {
			if s == "count" {
				f.Properties["count"] = int64(len(members))
				continue
			}
			f.Properties[s] = summarize(s, values)
		}
		out.Append(f)
	}
	return newVector("", src.crs, out, core.GeometryNone), nil
}
