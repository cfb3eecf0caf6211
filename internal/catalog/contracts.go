package catalog

import "github.com/leapstack-labs/leapgis/pkg/core"

var (
	predicates = []string{"intersects", "contains", "within", "equals", "touches", "overlaps", "crosses", "disjoint"}
	resampling = []string{"nearest", "bilinear", "cubic", "cubicspline", "lanczos", "average", "mode"}
)

func defaultCRS() *core.Value {
	v := core.StringValue(core.DefaultCRS)
	return &v
}

func defaultDistance() *core.Value {
	v := core.NumberValue(core.DefaultBufferDistance)
	return &v
}

// vectorRef declares a single vector layer reference.
func vectorRef(name, desc string, required bool) core.ParameterSpec {
	return core.ParameterSpec{
		Name:        name,
		Shape:       core.ShapeScalar,
		Type:        core.TypeString,
		Required:    required,
		Ref:         core.RefLayer,
		LayerKind:   core.LayerKindVector,
		Description: desc,
	}
}

func str(name, desc string, required bool) core.ParameterSpec {
	return core.ParameterSpec{Name: name, Shape: core.ShapeScalar, Type: core.TypeString, Required: required, Description: desc}
}

func enum(name, desc string, values []string) core.ParameterSpec {
	p := str(name, desc, false)
	p.Enum = values
	return p
}

func num(name, desc string) core.ParameterSpec {
	return core.ParameterSpec{Name: name, Shape: core.ShapeScalar, Type: core.TypeNumber, Description: desc}
}

func strs(name, desc string, required bool) core.ParameterSpec {
	return core.ParameterSpec{Name: name, Shape: core.ShapeArray, Type: core.TypeStringArray, Required: required, Description: desc}
}

// contracts is the static operation catalog.
var contracts = []core.OperationContract{
	{
		Name:        core.OpWarpReproject,
		Description: "Reprojects a raster layer into another coordinate reference system.",
		Output:      core.LayerKindRaster,
		Params: []core.ParameterSpec{
			{
				Name: core.ParamInput, Shape: core.ShapeScalar, Type: core.TypeString, Required: true,
				Ref: core.RefLayer, LayerKind: core.LayerKindRaster,
				Description: "Raster layer to reproject.",
			},
			str("SOURCE_CRS", "Override for the source CRS, e.g. EPSG:32633.", false),
			{
				Name: core.ParamTargetCRS, Shape: core.ShapeScalar, Type: core.TypeString,
				Default: defaultCRS(), Description: "Target CRS.",
			},
			enum("RESAMPLING", "Resampling method.", resampling),
		},
	},
	{
		Name:        core.OpAggregate,
		Description: "Groups vector features by an expression and computes aggregates per group.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to aggregate.", true),
			str("GROUP_BY", "Field or expression to group features by. Omit to aggregate everything into one feature.", false),
			strs(core.ParamAggregates, "Aggregates as function or function:field, e.g. sum:population.", true),
		},
	},
	{
		Name:        core.OpBuffer,
		Description: "Computes a buffer area around every feature of a vector layer.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to buffer.", true),
			{
				Name: core.ParamDistance, Shape: core.ShapeScalar, Type: core.TypeNumber,
				Default: defaultDistance(), Description: "Buffer distance in layer units.",
			},
			num("SEGMENTS", "Segments used to approximate a quarter circle."),
			enum("END_CAP_STYLE", "End cap style for line buffers.", []string{"round", "flat", "square"}),
			enum("DISSOLVE", "Dissolve the buffered result into one feature.", []string{"true", "false"}),
		},
	},
	{
		Name:        core.OpDissolve,
		Description: "Combines vector features into fewer features, optionally per unique field value.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to dissolve.", true),
			str("FIELD", "Dissolve features sharing this field value. Omit to dissolve everything.", false),
		},
	},
	{
		Name:        core.OpFieldCalculator,
		Description: "Computes a new attribute field for every feature of a vector layer from a formula.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to calculate on.", true),
			str("FIELD_NAME", "Name of the field to create or overwrite.", true),
			str("FORMULA", "Expression evaluated per feature.", true),
			enum("FIELD_TYPE", "Type of the result field.", []string{"float", "integer", "string"}),
		},
	},
	{
		Name:        core.OpGeometryByExpression,
		Description: "Replaces vector feature geometries with the result of an expression.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to transform.", true),
			str("EXPRESSION", "Geometry expression evaluated per feature.", true),
			enum("OUTPUT_GEOMETRY", "Geometry type produced by the expression.", []string{"polygon", "line", "point"}),
		},
	},
	{
		Name:        core.OpFixGeometries,
		Description: "Repairs invalid geometries of a vector layer.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to repair.", true),
		},
	},
	{
		Name:        core.OpJoinByLocation,
		Description: "Joins attributes from one vector layer onto another based on a spatial relationship.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer receiving attributes.", true),
			vectorRef(core.ParamJoin, "Vector layer providing attributes.", true),
			enum("PREDICATE", "Spatial relationship.", predicates),
			str("PREFIX", "Prefix for joined field names.", false),
		},
	},
	{
		Name:        core.OpMergeVectorLayers,
		Description: "Merges vector layers of the same geometry type into a single layer.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			{
				Name: core.ParamLayers, Shape: core.ShapeArray, Type: core.TypeStringArray, Required: true,
				Ref: core.RefLayer, LayerKind: core.LayerKindVector,
				Description: "Vector layers to merge.",
			},
			str("CRS", "CRS of the merged layer. Defaults to the CRS of the first layer.", false),
		},
	},
	{
		Name:        core.OpReprojectLayer,
		Description: "Reprojects a vector layer into another coordinate reference system.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to reproject.", true),
			{
				Name: core.ParamTargetCRS, Shape: core.ShapeScalar, Type: core.TypeString,
				Default: defaultCRS(), Description: "Target CRS.",
			},
		},
	},
	{
		Name:        core.OpClip,
		Description: "Clips a vector layer to the polygons of an overlay vector layer.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer to clip.", true),
			vectorRef(core.ParamOverlay, "Polygon vector layer to clip with.", true),
		},
	},
	{
		Name:        core.OpIntersection,
		Description: "Extracts the overlapping portions of features in an input and an overlay vector layer.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Input vector layer.", true),
			vectorRef(core.ParamOverlay, "Overlay vector layer.", true),
			str("INPUT_FIELDS_PREFIX", "Prefix for fields taken from the input layer.", false),
			str("OVERLAY_FIELDS_PREFIX", "Prefix for fields taken from the overlay layer.", false),
		},
	},
	{
		Name:        core.OpJoinByLocationSummary,
		Description: "Joins summarized attributes from one vector layer onto another based on a spatial relationship.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer receiving the summaries.", true),
			vectorRef(core.ParamJoin, "Vector layer providing attributes.", true),
			enum("PREDICATE", "Spatial relationship.", predicates),
			strs(core.ParamSummaries, "Summary functions to compute, e.g. count, mean.", false),
			strs("JOIN_FIELDS", "Fields of the join layer to summarize. Omit for all numeric fields.", false),
		},
	},
	{
		Name:        core.OpStatisticsByCategories,
		Description: "Computes statistics of a vector field grouped by one or more category fields.",
		Output:      core.LayerKindVector,
		Params: []core.ParameterSpec{
			vectorRef(core.ParamInput, "Vector layer with the data.", true),
			strs("CATEGORIES_FIELD_NAME", "Fields defining the categories.", true),
			str("VALUES_FIELD_NAME", "Field to compute statistics on. Omit to only count features.", false),
		},
	},
}
