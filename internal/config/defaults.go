package config

import "time"

// Default configuration values.
const (
	DefaultEngine      = "memory"
	DefaultStatePath   = ".leapgis/state.db"
	DefaultEnv         = "dev"
	DefaultTimeout     = 5 * time.Minute
	DefaultConcurrency = 4
	DefaultServerAddr  = ":8742"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// defaultSchemas holds the working schema per SQL engine.
var defaultSchemas = map[string]string{
	"postgis": "leapgis",
	"duckdb":  "main",
}

// DefaultSchemaForType returns the default working schema for an engine type.
// Engines without tables get an empty schema.
func DefaultSchemaForType(engineType string) string {
	return defaultSchemas[engineType]
}

// ApplyEngineDefaults applies default values to an EngineConfig based on the engine type.
func ApplyEngineDefaults(e *EngineConfig) {
	if e == nil {
		return
	}
	if e.Type == "" {
		e.Type = DefaultEngine
	}

	// Apply default schema based on type
	if e.Schema == "" {
		e.Schema = DefaultSchemaForType(e.Type)
	}

	// Apply type-specific defaults
	if e.Type == "postgis" && e.URL == "" {
		if e.Port == 0 {
			e.Port = 5432
		}
		if e.Host == "" {
			e.Host = "localhost"
		}
	}
}
