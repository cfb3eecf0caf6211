package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/internal/starlark"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// defaultSegments is the number of segments per quarter circle in buffers.
const defaultSegments = 5

func vectorInput(in inputs, param string) (*dataset, error) {
	ds := in.one(param)
	if ds == nil {
		return nil, adapter.Failure(nil, "missing input %s", param)
	}
	if ds.kind != core.LayerKindVector {
		return nil, adapter.Unsupported("%s must be a vector layer, got %s", param, ds.kind)
	}
	return ds, nil
}

// every reports ctx cancellation every 1024 iterations.
func every(ctx context.Context, i int) error {
	if i%1024 == 0 {
		return ctx.Err()
	}
	return nil
}

func buffer(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	if err := checkValid(src); err != nil {
		return nil, err
	}
	distance, _ := req.Number(core.ParamDistance)
	if distance <= 0 {
		return nil, adapter.Unsupported("buffer distance %g: only positive distances are supported", distance)
	}
	segments := defaultSegments
	if s, ok := req.Number("SEGMENTS"); ok && s >= 1 {
		segments = int(s)
	}

	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		pts, ok := points(f.Geometry)
		if !ok {
			return nil, adapter.Unsupported("buffer of %s geometries", geometryName(f.Geometry))
		}
		polys := make(orb.MultiPolygon, 0, len(pts))
		for _, p := range pts {
			polys = append(polys, circle(p, distance, segments))
		}
		var g orb.Geometry = polys
		if len(polys) == 1 {
			g = polys[0]
		}
		out.Append(withGeometry(f, g))
	}

	if req.StringOr("DISSOLVE", "false") == "true" && len(out.Features) > 0 {
		merged := geojson.NewFeature(collect(featureGeometries(out.Features)))
		merged.Properties = out.Features[0].Properties.Clone()
		out = geojson.NewFeatureCollection()
		out.Append(merged)
	}
	return newVector("", src.crs, out, core.GeometryPolygon), nil
}

func dissolve(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	if err := checkValid(src); err != nil {
		return nil, err
	}
	field, _ := req.String("FIELD")

	groups, order := groupFeatures(src.fc.Features, func(f *geojson.Feature) string {
		if field == "" {
			return ""
		}
		return groupKey(f.Properties[field])
	})
	out := geojson.NewFeatureCollection()
	for i, key := range order {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		members := groups[key]
		if len(members) == 1 {
			out.Append(cloneFeature(members[0]))
			continue
		}
		g := collect(featureGeometries(members))
		out.Append(withGeometry(members[0], orb.Clone(g)))
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func fixGeometries(ctx context.Context, _ *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			out.Append(cloneFeature(f))
			continue
		}
		g := fix(orb.Clone(f.Geometry))
		if g == nil {
			continue
		}
		out.Append(withGeometry(f, g))
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func mergeVectorLayers(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	layers := in[core.ParamLayers]
	if len(layers) == 0 {
		return nil, adapter.Failure(nil, "no layers to merge")
	}
	crs := normalizeCRS(req.StringOr("CRS", layers[0].crs))

	out := geojson.NewFeatureCollection()
	var fallback core.GeometryType
	for _, ds := range layers {
		if ds.kind != core.LayerKindVector {
			return nil, adapter.Unsupported("merge of %s layer %s", ds.kind, ds.id)
		}
		move, err := transform(ds.crs, crs)
		if err != nil {
			return nil, err
		}
		if fallback == "" || fallback == core.GeometryUnknown {
			fallback = ds.gtype
		}
		source := ds.name
		if source == "" {
			source = ds.id
		}
		for i, f := range ds.fc.Features {
			if err := every(ctx, i); err != nil {
				return nil, err
			}
			c := withGeometry(f, move(f.Geometry))
			c.Properties["layer"] = source
			out.Append(c)
		}
	}
	return newVector("", crs, out, fallback), nil
}

func reprojectLayer(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	target := normalizeCRS(req.StringOr(core.ParamTargetCRS, core.DefaultCRS))
	move, err := transform(src.crs, target)
	if err != nil {
		return nil, err
	}
	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		out.Append(withGeometry(f, move(f.Geometry)))
	}
	return newVector("", target, out, src.gtype), nil
}

// overlay is a polygon overlay prepared for clipping.
type overlay struct {
	feature *geojson.Feature
	geom    orb.Geometry
	rect    orb.Bound
	isRect  bool
}

func prepareOverlay(ds *dataset, targetCRS string) ([]overlay, error) {
	move, err := transform(ds.crs, targetCRS)
	if err != nil {
		return nil, err
	}
	var out []overlay
	for _, f := range ds.fc.Features {
		if f.Geometry == nil {
			continue
		}
		g := move(f.Geometry)
		if !isPolygonal(g) {
			return nil, adapter.Unsupported("overlay with %s geometries", geometryName(g))
		}
		b, rect := isRectangle(g)
		out = append(out, overlay{feature: f, geom: g, rect: b, isRect: rect})
	}
	return out, nil
}

// cut returns the part of g inside o, or nil. Points are tested against any
// polygon; other geometries need a rectangular overlay.
func (o overlay) cut(g orb.Geometry) (orb.Geometry, error) {
	if g == nil || !o.geom.Bound().Intersects(g.Bound()) {
		return nil, nil
	}
	if pts, ok := points(g); ok {
		var kept orb.MultiPoint
		for _, p := range pts {
			if contains(o.geom, p) {
				kept = append(kept, p)
			}
		}
		switch {
		case len(kept) == 0:
			return nil, nil
		case len(kept) == 1:
			return kept[0], nil
		}
		return kept, nil
	}
	if !o.isRect {
		return nil, adapter.Unsupported("clipping %s geometries by a non-rectangular polygon", geometryName(g))
	}
	res := clip.Geometry(o.rect, orb.Clone(g))
	if isEmpty(res) {
		return nil, nil
	}
	return res, nil
}

func clipLayer(ctx context.Context, _ *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	mask, err := vectorInput(in, core.ParamOverlay)
	if err != nil {
		return nil, err
	}
	for _, ds := range []*dataset{src, mask} {
		if err := checkValid(ds); err != nil {
			return nil, err
		}
	}
	overlays, err := prepareOverlay(mask, src.crs)
	if err != nil {
		return nil, err
	}

	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		var pieces []orb.Geometry
		for _, o := range overlays {
			piece, err := o.cut(f.Geometry)
			if err != nil {
				return nil, err
			}
			if piece != nil {
				pieces = append(pieces, piece)
			}
		}
		if len(pieces) > 0 {
			out.Append(withGeometry(f, collect(pieces)))
		}
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func intersection(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	other, err := vectorInput(in, core.ParamOverlay)
	if err != nil {
		return nil, err
	}
	for _, ds := range []*dataset{src, other} {
		if err := checkValid(ds); err != nil {
			return nil, err
		}
	}
	overlays, err := prepareOverlay(other, src.crs)
	if err != nil {
		return nil, err
	}
	inPrefix, _ := req.String("INPUT_FIELDS_PREFIX")
	ovPrefix, _ := req.String("OVERLAY_FIELDS_PREFIX")

	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		if err := every(ctx, i); err != nil {
			return nil, err
		}
		for _, o := range overlays {
			piece, err := o.cut(f.Geometry)
			if err != nil {
				return nil, err
			}
			if piece == nil {
				continue
			}
			c := geojson.NewFeature(piece)
			c.Properties = geojson.Properties{}
			for k, v := range f.Properties {
				c.Properties[inPrefix+k] = v
			}
			for k, v := range o.feature.Properties {
				name := ovPrefix + k
				if _, clash := c.Properties[name]; clash && ovPrefix == "" {
					name = k + "_2"
				}
				c.Properties[name] = v
			}
			out.Append(c)
		}
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func fieldCalculator(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	name, _ := req.String("FIELD_NAME")
	formula, _ := req.String("FORMULA")
	fieldType := req.StringOr("FIELD_TYPE", "float")
	expr, err := starlark.Compile(formula)
	if err != nil {
		return nil, adapter.Failure(err, "invalid formula")
	}

	ev := starlark.NewEvaluator(ctx, req.OutputID)
	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		v, err := ev.Value(expr, starlark.Feature{Index: i, Attributes: f.Properties, Geometry: f.Geometry})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, adapter.Failure(err, "formula failed")
		}
		c := cloneFeature(f)
		c.Properties[name] = coerce(v, fieldType)
		out.Append(c)
	}
	return newVector("", src.crs, out, src.gtype), nil
}

func geometryByExpression(ctx context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src, err := vectorInput(in, core.ParamInput)
	if err != nil {
		return nil, err
	}
	if err := checkValid(src); err != nil {
		return nil, err
	}
	source, _ := req.String("EXPRESSION")
	want := familyOf(req.StringOr("OUTPUT_GEOMETRY", "polygon"))
	expr, err := starlark.Compile(source)
	if err != nil {
		return nil, adapter.Failure(err, "invalid expression")
	}

	ev := starlark.NewEvaluator(ctx, req.OutputID)
	out := geojson.NewFeatureCollection()
	for i, f := range src.fc.Features {
		g, err := ev.Geometry(expr, starlark.Feature{Index: i, Attributes: f.Properties, Geometry: f.Geometry})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, adapter.Failure(err, "expression failed")
		}
		if g != nil {
			got := core.ParseGeometryType(g.GeoJSONType()).Family()
			if got != want {
				return nil, adapter.Failure(nil, "feature %d: expression produced %s geometry, want %s", i, got, want)
			}
			if reason := invalidReason(g); reason != "" {
				return nil, adapter.InvalidGeometry("feature %d: expression produced invalid geometry: %s", i, reason)
			}
		}
		out.Append(withGeometry(f, g))
	}
	fallback := core.GeometryPolygon
	switch want {
	case core.FamilyLine:
		fallback = core.GeometryLineString
	case core.FamilyPoint:
		fallback = core.GeometryPoint
	}
	return newVector("", src.crs, out, fallback), nil
}

func familyOf(s string) core.GeometryFamily {
	switch strings.ToLower(s) {
	case "line":
		return core.FamilyLine
	case "point":
		return core.FamilyPoint
	}
	return core.FamilyPolygon
}

func geometryName(g orb.Geometry) string {
	if g == nil {
		return "empty"
	}
	return g.GeoJSONType()
}

// groupKey renders an attribute value as a grouping key. Missing values
// group together.
func groupKey(v any) string {
	if v == nil {
		return "\x00null"
	}
	return fmt.Sprint(v)
}

// groupFeatures buckets features by key, keeping first-seen key order.
func groupFeatures(fs []*geojson.Feature, key func(*geojson.Feature) string) (map[string][]*geojson.Feature, []string) {
	groups := make(map[string][]*geojson.Feature)
	var order []string
	for _, f := range fs {
		k := key(f)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}
	return groups, order
}
