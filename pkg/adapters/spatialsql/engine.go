package spatialsql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Engine executes operations as SQL through database/sql. Concrete engines
// embed it and open the connection in Connect.
type Engine struct {
	adapter.BaseSQLAdapter
	Builder Builder
	// Name tags the layers this engine produces.
	Name string
}

// NewEngine creates a SQL engine for a dialect. The logger is optional.
func NewEngine(name string, d *Dialect, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
		Builder:        Builder{Dialect: d},
		Name:           name,
	}
}

// Execute renders the request, materializes the output table, and describes
// it.
func (e *Engine) Execute(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
	if !e.IsConnected() {
		return nil, adapter.Failure(nil, "%s: database connection not established", e.Name)
	}
	st, err := e.Builder.Build(req)
	if err != nil {
		return nil, err
	}
	e.Logger.Debug("executing", slog.String("algorithm", req.AlgorithmID), slog.String("output", req.OutputID))
	if err := e.Exec(ctx, st.SQL()); err != nil {
		return nil, classify(err, "%s failed", req.AlgorithmID)
	}
	if err := ctx.Err(); err != nil {
		e.drop(context.WithoutCancel(ctx), req.OutputID)
		return nil, err
	}

	l, err := e.Describe(ctx, req.OutputID, st.Kind, st.CRS)
	if err != nil {
		e.drop(context.WithoutCancel(ctx), req.OutputID)
		return nil, classify(err, "describe %s", req.OutputID)
	}
	if st.Family != "" {
		switch got := l.GeometryType.Family(); got {
		case st.Family, core.FamilyUnknown, core.FamilyNone:
		default:
			e.drop(context.WithoutCancel(ctx), req.OutputID)
			return nil, adapter.Failure(nil, "expression produced %s geometry, want %s", got, st.Family)
		}
	}
	return l, nil
}

// Discard drops the table behind a layer.
func (e *Engine) Discard(ctx context.Context, l *core.Layer) error {
	if !e.IsConnected() {
		return nil
	}
	return e.Exec(ctx, "DROP TABLE IF EXISTS "+e.Builder.source(l))
}

func (e *Engine) drop(ctx context.Context, id string) {
	if err := e.Exec(ctx, "DROP TABLE IF EXISTS "+e.Builder.Table(id)); err != nil {
		e.Logger.Warn("failed to drop table", slog.String("layer", id), slog.String("error", err.Error()))
	}
}

// Column is one table column as reported by information_schema.
type Column struct {
	Name string
	Type string
}

// Columns lists the columns of a layer table in ordinal order.
func (e *Engine) Columns(ctx context.Context, id string) ([]Column, error) {
	rows, err := e.DB.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position",
		e.Builder.Schema, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Describe builds the layer handle of an existing table.
func (e *Engine) Describe(ctx context.Context, id string, kind core.LayerKind, crs string) (*core.Layer, error) {
	cols, err := e.Columns(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, adapter.NotFound(id)
	}
	table := e.Builder.Table(id)
	l := &core.Layer{
		ID:       id,
		Kind:     kind,
		CRS:      crs,
		Location: table,
		Metadata: map[string]string{"engine": e.Name, "table": table},
	}

	if kind == core.LayerKindRaster {
		var bands int
		err := e.QueryRow(ctx,
			fmt.Sprintf("SELECT count(*), coalesce(max(ST_NumBands(%s)), 0) FROM %s", adapter.QuoteIdent(RasterColumn), table),
			nil, &l.FeatureCount, &bands)
		if err != nil {
			return nil, err
		}
		l.BandCount = bands
		return l, nil
	}

	hasGeometry := false
	for _, c := range cols {
		if c.Name == GeometryColumn {
			hasGeometry = true
			continue
		}
		l.Fields = append(l.Fields, c.Name)
		l.Metadata[FieldTypePrefix+c.Name] = c.Type
	}
	if err := e.QueryRow(ctx, "SELECT count(*) FROM "+table, nil, &l.FeatureCount); err != nil {
		return nil, err
	}
	l.GeometryType = core.GeometryNone
	if hasGeometry {
		types, err := e.geometryTypes(ctx, table)
		if err != nil {
			return nil, err
		}
		l.GeometryType = core.FoldGeometryTypes(types...)
	}
	return l, nil
}

func (e *Engine) geometryTypes(ctx context.Context, table string) ([]core.GeometryType, error) {
	rows, err := e.DB.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT %s(%s) FROM %s WHERE %s IS NOT NULL",
		e.Builder.Dialect.GeometryTypeFunc, qGeom, table, qGeom))
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry types: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan geometry type: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	types := make([]core.GeometryType, len(names))
	for i, n := range names {
		types[i] = core.ParseGeometryType(n)
	}
	return types, nil
}

// propertyColumn is an import column inferred from feature properties.
type propertyColumn struct {
	name string
	kind string
}

// inferColumns derives import columns from properties in first-seen order.
// Whole numbers become integers; mixed kinds fall back to strings.
func inferColumns(fc *geojson.FeatureCollection) []propertyColumn {
	var cols []propertyColumn
	index := map[string]int{}
	for _, f := range fc.Features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == GeometryColumn {
				continue
			}
			kind := valueKind(f.Properties[k])
			i, seen := index[k]
			switch {
			case !seen:
				index[k] = len(cols)
				cols = append(cols, propertyColumn{name: k, kind: kind})
			case kind == "" || cols[i].kind == kind:
			case cols[i].kind == "":
				cols[i].kind = kind
			case cols[i].kind == "integer" && kind == "float", cols[i].kind == "float" && kind == "integer":
				cols[i].kind = "float"
			default:
				cols[i].kind = "string"
			}
		}
	}
	for i := range cols {
		if cols[i].kind == "" {
			cols[i].kind = "string"
		}
	}
	return cols
}

func valueKind(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return "integer"
		}
		return "float"
	case bool:
		return "boolean"
	case string:
		return "string"
	default:
		return "json"
	}
}

// columnValue converts a property to the bind value of its column.
func columnValue(v any, kind string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case "integer":
		if f, ok := v.(float64); ok {
			return int64(f), nil
		}
	case "float", "boolean":
		return v, nil
	case "json":
		b, err := json.Marshal(v)
		return string(b), err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// ImportGeoJSON loads a GeoJSON feature collection into a new table.
func (e *Engine) ImportGeoJSON(ctx context.Context, id, path string) (*core.Layer, error) {
	if !e.IsConnected() {
		return nil, adapter.Failure(nil, "%s: database connection not established", e.Name)
	}
	fc, err := geojsonio.Read(path)
	if err != nil {
		return nil, err
	}
	crs := geojsonio.CollectionCRS(fc)
	srid, _ := core.EPSGCode(crs)
	cols := inferColumns(fc)
	table := e.Builder.Table(id)
	d := e.Builder.Dialect

	defs := make([]string, 0, len(cols)+1)
	names := make([]string, 0, len(cols)+1)
	binds := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		defs = append(defs, adapter.QuoteIdent(c.name)+" "+d.Type(c.kind))
		names = append(names, adapter.QuoteIdent(c.name))
		binds = append(binds, d.Placeholder(i+1))
	}
	defs = append(defs, qGeom+" "+d.Type("geometry"))
	names = append(names, qGeom)
	binds = append(binds, d.GeomFromText(d.Placeholder(len(cols)+1), srid))

	if err := e.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, list(defs...))); err != nil {
		return nil, classify(err, "import %s", path)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, list(names...), list(binds...))
	if err := e.insert(ctx, insert, cols, fc); err != nil {
		e.drop(context.WithoutCancel(ctx), id)
		return nil, classify(err, "import %s", path)
	}

	l, err := e.Describe(ctx, id, core.LayerKindVector, crs)
	if err != nil {
		e.drop(context.WithoutCancel(ctx), id)
		return nil, classify(err, "describe %s", id)
	}
	l.Name = geojsonio.LayerName(path)
	e.Logger.Debug("imported", slog.String("layer", id), slog.String("path", path), slog.Int("features", len(fc.Features)))
	return l, nil
}

func (e *Engine) insert(ctx context.Context, stmt string, cols []propertyColumn, fc *geojson.FeatureCollection) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range fc.Features {
		args := make([]any, 0, len(cols)+1)
		for _, c := range cols {
			v, err := columnValue(f.Properties[c.name], c.kind)
			if err != nil {
				return err
			}
			args = append(args, v)
		}
		var g any
		if f.Geometry != nil {
			g = wkt.MarshalString(f.Geometry)
		}
		args = append(args, g)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to insert feature: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// ExportGeoJSON writes a vector layer as a GeoJSON feature collection.
func (e *Engine) ExportGeoJSON(ctx context.Context, l *core.Layer, path string) (string, error) {
	if !e.IsConnected() {
		return "", adapter.Failure(nil, "%s: database connection not established", e.Name)
	}
	if l.Kind == core.LayerKindRaster {
		return "", adapter.Unsupported("export of raster layers from %s", e.Name)
	}
	cols, err := e.Columns(ctx, l.ID)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", adapter.NotFound(l.ID)
	}

	selects := []string{"NULL"}
	var fields []string
	for _, c := range cols {
		if c.Name == GeometryColumn {
			selects[0] = fmt.Sprintf("CAST(ST_AsGeoJSON(%s) AS %s)", tGeom, e.Builder.Dialect.Type("string"))
			continue
		}
		fields = append(fields, c.Name)
		selects = append(selects, "t."+adapter.QuoteIdent(c.Name))
	}
	rows, err := e.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s t", list(selects...), e.Builder.source(l)))
	if err != nil {
		return "", classify(err, "export %s", l.ID)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var geom sql.NullString
		values := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &geom)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return "", fmt.Errorf("failed to scan feature: %w", err)
		}
		f := geojson.NewFeature(nil)
		if geom.Valid {
			g, err := geojson.UnmarshalGeometry([]byte(geom.String))
			if err != nil {
				return "", fmt.Errorf("invalid geometry in %s: %w", l.ID, err)
			}
			f.Geometry = g.Geometry()
		}
		for i, name := range fields {
			f.Properties[name] = exportValue(values[i])
		}
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	geojsonio.SetCRS(fc, l.CRS)
	path = geojsonio.OutputPath(path, l.ID, ".geojson")
	if err := geojsonio.Write(path, fc); err != nil {
		return "", err
	}
	return path, nil
}

func exportValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return x
	}
}
