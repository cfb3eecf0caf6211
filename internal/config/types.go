// Package config provides shared configuration types for leapgis.
// This package is decoupled from CLI concerns so the CLI and the HTTP server
// build engine configuration the same way.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// EngineConfig selects and configures the geoprocessing engine.
type EngineConfig struct {
	Type string `koanf:"type"` // memory, postgis, duckdb, qgis

	// File-based engines (DuckDB)
	Path string `koanf:"path"`

	// URL is a connection URL (PostGIS) or the processing service URL (QGIS)
	URL string `koanf:"url"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Schema holds layer tables for SQL engines
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (DuckDB extensions, QGIS bucket, ...)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the config into the adapter connection settings.
func (e *EngineConfig) AdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(e.Type),
		Path:     e.Path,
		URL:      e.URL,
		Host:     e.Host,
		Port:     e.Port,
		Database: e.Database,
		Username: e.User,
		Password: e.Password,
		Schema:   e.Schema,
		Options:  e.Options,
		Params:   e.Params,
	}
}

// Validate checks if the engine configuration is valid.
// It uses the adapter registry to determine which engine types are available.
func (e *EngineConfig) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("engine type is required")
	}

	// Use adapter registry as single source of truth
	if !adapter.IsRegistered(strings.ToLower(e.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      e.Type,
			Available: adapter.ListAdapters(),
		}
	}

	return nil
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}
