package core

import "strings"

// Operation names a catalog operation. The set is closed: every value below
// has exactly one contract in the catalog and one variant in the dispatcher.
type Operation string

// Catalog operations.
const (
	OpWarpReproject          Operation = "gdal_warpreproject"
	OpAggregate              Operation = "native_aggregate"
	OpBuffer                 Operation = "native_buffer"
	OpDissolve               Operation = "native_dissolve"
	OpFieldCalculator        Operation = "native_fieldcalculator"
	OpGeometryByExpression   Operation = "native_geometrybyexpression"
	OpFixGeometries          Operation = "native_fixgeometries"
	OpJoinByLocation         Operation = "native_joinattributesbylocation"
	OpMergeVectorLayers      Operation = "native_mergevectorlayers"
	OpReprojectLayer         Operation = "native_reprojectlayer"
	OpClip                   Operation = "qgis_clip"
	OpIntersection           Operation = "native_intersection"
	OpJoinByLocationSummary  Operation = "qgis_joinbylocationsummary"
	OpStatisticsByCategories Operation = "qgis_statisticsbycategories"
)

// Operations lists every catalog operation in a stable order.
func Operations() []Operation {
	return []Operation{
		OpWarpReproject,
		OpAggregate,
		OpBuffer,
		OpDissolve,
		OpFieldCalculator,
		OpGeometryByExpression,
		OpFixGeometries,
		OpJoinByLocation,
		OpMergeVectorLayers,
		OpReprojectLayer,
		OpClip,
		OpIntersection,
		OpJoinByLocationSummary,
		OpStatisticsByCategories,
	}
}

// AlgorithmID returns the engine algorithm identifier: the provider prefix
// is separated by a colon ("native_buffer" -> "native:buffer").
func (o Operation) AlgorithmID() string {
	return strings.Replace(string(o), "_", ":", 1)
}

// Provider returns the algorithm provider ("gdal", "native", "qgis").
func (o Operation) Provider() string {
	p, _, _ := strings.Cut(string(o), "_")
	return p
}

// Well-known parameter names shared by several operations.
const (
	ParamInput      = "INPUT"
	ParamOverlay    = "OVERLAY"
	ParamJoin       = "JOIN"
	ParamLayers     = "LAYERS"
	ParamTargetCRS  = "TARGET_CRS"
	ParamDistance   = "DISTANCE"
	ParamAggregates = "AGGREGATES"
	ParamSummaries  = "SUMMARIES"
)

// DefaultCRS is the CRS injected when a reprojection omits TARGET_CRS.
const DefaultCRS = "EPSG:4326"

// DefaultBufferDistance is the DISTANCE injected when a buffer omits it.
const DefaultBufferDistance = 10.0
