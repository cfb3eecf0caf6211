// Package duckdb provides a geoprocessing engine backed by DuckDB and its
// spatial extension. Layers are tables in one schema of a file or in-memory
// database.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/adapters/spatialsql"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// DefaultSchema is DuckDB's default schema.
const DefaultSchema = "main"

// gdalDrivers maps file extensions to the GDAL drivers ST_Read and COPY use.
var gdalDrivers = map[string]string{
	".gpkg": "GPKG",
	".fgb":  "FlatGeobuf",
	".shp":  "ESRI Shapefile",
	".gml":  "GML",
	".kml":  "KML",
}

// Adapter implements adapter.Engine for DuckDB.
type Adapter struct {
	*spatialsql.Engine
}

var (
	_ adapter.Engine    = (*Adapter)(nil)
	_ adapter.Importer  = (*Adapter)(nil)
	_ adapter.Exporter  = (*Adapter)(nil)
	_ adapter.Discarder = (*Adapter)(nil)
)

// New creates a new DuckDB engine instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{Engine: spatialsql.NewEngine("duckdb", spatialsql.DuckDB, logger)}
}

// Connect opens the database and loads the spatial extension.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.Builder.Schema = cfg.Schema
	if a.Builder.Schema == "" {
		a.Builder.Schema = DefaultSchema
	}
	if err := a.setup(ctx, params); err != nil {
		_ = a.Close()
		a.DB = nil
		return err
	}
	return nil
}

// setupStatements lists the statements run after connecting: extensions,
// settings, secrets, and the layer schema.
func setupStatements(p *Params, schema string) []string {
	exts := append([]string{"spatial"}, p.Extensions...)
	seen := map[string]bool{}
	var stmts []string
	for _, ext := range exts {
		if seen[ext] {
			continue
		}
		seen[ext] = true
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = %s", k, quote(p.Settings[k])))
	}

	for _, s := range p.Secrets {
		stmts = append(stmts, buildCreateSecretSQL(s))
	}
	if schema != DefaultSchema {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+adapter.QuoteIdent(schema))
	}
	return stmts
}

func (a *Adapter) setup(ctx context.Context, p *Params) error {
	for _, stmt := range setupStatements(p, a.Builder.Schema) {
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb setup: %w", err)
		}
	}
	return nil
}

// Import loads a file as a layer. GeoJSON goes through the shared importer
// so the CRS member is honored; GDAL formats go through ST_Read and CSV
// through read_csv_auto.
func (a *Adapter) Import(ctx context.Context, id, path string) (*core.Layer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".geojson" || ext == ".json":
		return a.ImportGeoJSON(ctx, id, path)
	case ext == ".csv":
		return a.load(ctx, id, path, "read_csv_auto(%s, header=true)", "")
	case gdalDrivers[ext] != "":
		return a.load(ctx, id, path, "ST_Read(%s)", core.DefaultCRS)
	default:
		return nil, adapter.Unsupported("import of %s files on duckdb", ext)
	}
}

func (a *Adapter) load(ctx context.Context, id, path, reader, crs string) (*core.Layer, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	query := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM "+reader, a.Builder.Table(id), quote(absPath))
	if err := a.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	l, err := a.Describe(ctx, id, core.LayerKindVector, crs)
	if err != nil {
		return nil, err
	}
	l.Name = geojsonio.LayerName(path)
	return l, nil
}

// Export writes a vector layer as GeoJSON, or through GDAL for the formats
// in gdalDrivers.
func (a *Adapter) Export(ctx context.Context, l *core.Layer, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	driver, ok := gdalDrivers[ext]
	if !ok {
		return a.ExportGeoJSON(ctx, l, path)
	}
	if l.Kind == core.LayerKindRaster {
		return "", adapter.Unsupported("export of raster layers from duckdb")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(absPath), err)
	}
	stmt := fmt.Sprintf("COPY (SELECT * FROM %s) TO %s WITH (FORMAT GDAL, DRIVER %s)",
		a.Builder.Table(l.ID), quote(absPath), quote(driver))
	if err := a.Exec(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to export %s: %w", l.ID, err)
	}
	return absPath, nil
}
