// Package postgis provides a geoprocessing engine backed by PostgreSQL with
// the PostGIS extension. Every layer is a table in one schema.
package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/spatialsql"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// DefaultSchema holds layer tables when the config names none.
const DefaultSchema = "leapgis"

// Adapter implements adapter.Engine for PostGIS.
type Adapter struct {
	*spatialsql.Engine
}

var (
	_ adapter.Engine    = (*Adapter)(nil)
	_ adapter.Importer  = (*Adapter)(nil)
	_ adapter.Exporter  = (*Adapter)(nil)
	_ adapter.Discarder = (*Adapter)(nil)
)

// New creates a new PostGIS engine instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{Engine: spatialsql.NewEngine("postgis", spatialsql.PostGIS, logger)}
}

// Connect establishes a connection and prepares the extension and schema.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgis", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.Builder.Schema = cfg.Schema
	if a.Builder.Schema == "" {
		a.Builder.Schema = DefaultSchema
	}
	if err := a.setup(ctx); err != nil {
		_ = a.Close()
		a.DB = nil
		return err
	}
	return nil
}

// setup enables PostGIS and creates the layer schema. The raster extension
// is optional: without it raster reprojection fails at execution time.
func (a *Adapter) setup(ctx context.Context) error {
	if err := a.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to enable postgis: %w", err)
	}
	if err := a.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis_raster"); err != nil {
		a.Logger.Warn("postgis_raster unavailable", slog.String("error", err.Error()))
	}
	if err := a.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+adapter.QuoteIdent(a.Builder.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", a.Builder.Schema, err)
	}
	return nil
}

// buildPostgresDSN constructs a PostgreSQL connection string. A URL in the
// config wins over the individual fields.
func buildPostgresDSN(cfg adapter.Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	// key=value format: host=localhost port=5432 user=postgres ...
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}

	return dsn
}

// Import loads a GeoJSON file as a vector layer or a CSV file as an
// attribute-only layer.
func (a *Adapter) Import(ctx context.Context, id, path string) (*core.Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return a.ImportGeoJSON(ctx, id, path)
	case ".csv":
		return a.importCSV(ctx, id, path)
	default:
		return nil, adapter.Unsupported("import of %s files on postgis", filepath.Ext(path))
	}
}

// Export writes a vector layer as GeoJSON.
func (a *Adapter) Export(ctx context.Context, l *core.Layer, path string) (string, error) {
	return a.ExportGeoJSON(ctx, l, path)
}

// importCSV loads a CSV file into a table using COPY FROM STDIN.
// All columns are created as TEXT type for robustness.
func (a *Adapter) importCSV(ctx context.Context, id, path string) (*core.Layer, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	file, err := os.Open(path) //nolint:gosec // path is provided by the caller on purpose
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	headers, err := readHeader(file)
	if err != nil {
		return nil, err
	}
	table := a.Builder.Table(id)
	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = sanitizeIdentifier(h) + " TEXT"
	}
	if err := a.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file: %w", err)
	}
	if err := a.copyFromCSV(ctx, table, file); err != nil {
		_ = a.Discard(context.WithoutCancel(ctx), &core.Layer{ID: id})
		return nil, fmt.Errorf("failed to copy data: %w", err)
	}

	l, err := a.Describe(ctx, id, core.LayerKindVector, "")
	if err != nil {
		return nil, err
	}
	l.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return l, nil
}

// copyFromCSV uses PostgreSQL COPY to load CSV data.
func (a *Adapter) copyFromCSV(ctx context.Context, table string, r io.Reader) error {
	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()
		copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", table)
		_, err := pgxConn.PgConn().CopyFrom(ctx, r, copySQL)
		return err
	})
}
