// Package spatialsql renders catalog operations as SQL for databases with a
// spatial extension. Each operation becomes one CREATE TABLE ... AS SELECT
// statement whose table is named after the output layer, so the database
// holds every intermediate layer until it is discarded.
package spatialsql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// Column names used for layer tables.
const (
	GeometryColumn = "geom"
	RasterColumn   = "rast"
)

// Dialect captures how one database spells spatial SQL.
type Dialect struct {
	Name string
	// GeometryTypeFunc reports the geometry type of a value, e.g. GeometryType.
	GeometryTypeFunc string
	// UnionAgg and CollectAgg are aggregate templates; %s receives the
	// geometry expression.
	UnionAgg   string
	CollectAgg string
	// Types maps FIELD_TYPE values and import column kinds (json, geometry)
	// to column types.
	Types map[string]string
	// Aggregates overrides the shared aggregate templates.
	Aggregates map[string]string
	// Buffer renders a buffer call.
	Buffer func(geom string, distance float64, segments int, endCap string) string
	// Transform renders a reprojection between EPSG codes.
	Transform func(geom string, from, to int) string
	// GeomFromText parses WKT bound to a placeholder.
	GeomFromText func(wkt string, srid int) string
	// WarpRaster renders a raster reprojection. Nil when rasters are not
	// supported.
	WarpRaster func(rast string, from, to int, resampling string) (string, error)
}

// Placeholder returns the n-th bind placeholder. Both supported databases
// accept the $n form.
func (d *Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Type returns the column type for a field kind, falling back to the string
// type.
func (d *Dialect) Type(kind string) string {
	if t, ok := d.Types[kind]; ok {
		return t
	}
	return d.Types["string"]
}

// commonAggregates are the aggregate templates shared by both dialects.
var commonAggregates = map[string]string{
	"count":          "count(%s)",
	"count_distinct": "count(DISTINCT %s)",
	"count_missing":  "(count(*) - count(%s))",
	"sum":            "sum(%s)",
	"mean":           "avg(%s)",
	"min":            "min(%s)",
	"max":            "max(%s)",
	"range":          "(max(%[1]s) - min(%[1]s))",
	"stddev":         "stddev_samp(%s)",
}

// Aggregate renders an aggregate function over expr.
func (d *Dialect) Aggregate(fn, expr string) (string, error) {
	fn = strings.ToLower(fn)
	tmpl, ok := d.Aggregates[fn]
	if !ok {
		tmpl, ok = commonAggregates[fn]
	}
	if !ok {
		return "", adapter.Unsupported("aggregate %s on %s", fn, d.Name)
	}
	return fmt.Sprintf(tmpl, expr), nil
}

// PostGIS is the dialect of PostgreSQL with the postgis and postgis_raster
// extensions.
var PostGIS = &Dialect{
	Name:             "postgis",
	GeometryTypeFunc: "GeometryType",
	UnionAgg:         "ST_Union(%s)",
	CollectAgg:       "ST_Collect(%s)",
	Types: map[string]string{
		"float":    "double precision",
		"integer":  "bigint",
		"string":   "text",
		"boolean":  "boolean",
		"json":     "jsonb",
		"geometry": "geometry",
	},
	Aggregates: map[string]string{
		"median":      "percentile_cont(0.5) WITHIN GROUP (ORDER BY %s)",
		"majority":    "mode() WITHIN GROUP (ORDER BY %s)",
		"first_value": "(array_agg(%s))[1]",
		"last_value":  "(array_agg(%[1]s))[array_length(array_agg(%[1]s), 1)]",
		"concatenate": "string_agg(CAST(%s AS text), ',')",
	},
	Buffer: func(geom string, distance float64, segments int, endCap string) string {
		return fmt.Sprintf("ST_Buffer(%s, %s, 'quad_segs=%d endcap=%s')", geom, number(distance), segments, endCap)
	},
	Transform: func(geom string, from, to int) string {
		return fmt.Sprintf("ST_Transform(ST_SetSRID(%s, %d), %d)", geom, from, to)
	},
	GeomFromText: func(wkt string, srid int) string {
		return fmt.Sprintf("ST_GeomFromText(%s, %d)", wkt, srid)
	},
	WarpRaster: func(rast string, from, to int, resampling string) (string, error) {
		algorithm, ok := postgisResampling[resampling]
		if !ok {
			return "", adapter.Unsupported("resampling %q on postgis", resampling)
		}
		if from > 0 {
			rast = fmt.Sprintf("ST_SetSRID(%s, %d)", rast, from)
		}
		return fmt.Sprintf("ST_Transform(%s, %d, '%s')", rast, to, algorithm), nil
	},
}

var postgisResampling = map[string]string{
	"nearest":     "NearestNeighbor",
	"bilinear":    "Bilinear",
	"cubic":       "Cubic",
	"cubicspline": "CubicSpline",
	"lanczos":     "Lanczos",
}

// DuckDB is the dialect of DuckDB with the spatial extension.
var DuckDB = &Dialect{
	Name:             "duckdb",
	GeometryTypeFunc: "ST_GeometryType",
	UnionAgg:         "ST_Union_Agg(%s)",
	CollectAgg:       "ST_Collect(list(%s))",
	Types: map[string]string{
		"float":    "DOUBLE",
		"integer":  "BIGINT",
		"string":   "VARCHAR",
		"boolean":  "BOOLEAN",
		"json":     "JSON",
		"geometry": "GEOMETRY",
	},
	Aggregates: map[string]string{
		"median":      "median(%s)",
		"majority":    "mode(%s)",
		"first_value": "first(%s)",
		"last_value":  "last(%s)",
		"concatenate": "string_agg(CAST(%s AS VARCHAR), ',')",
	},
	Buffer: func(geom string, distance float64, segments int, endCap string) string {
		if endCap == "" || endCap == "round" {
			return fmt.Sprintf("ST_Buffer(%s, %s, %d)", geom, number(distance), segments)
		}
		return fmt.Sprintf("ST_Buffer(%s, %s, %d, 'CAP_%s', 'JOIN_ROUND', 1.0)",
			geom, number(distance), segments, strings.ToUpper(endCap))
	},
	Transform: func(geom string, from, to int) string {
		return fmt.Sprintf("ST_Transform(%s, 'EPSG:%d', 'EPSG:%d', true)", geom, from, to)
	},
	GeomFromText: func(wkt string, _ int) string {
		return fmt.Sprintf("ST_GeomFromText(%s)", wkt)
	},
}

func number(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// quoteLiteral renders a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
