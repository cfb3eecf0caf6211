package core

// AdapterConfig holds configuration for connecting to a geoprocessing engine.
type AdapterConfig struct {
	Type     string
	Path     string
	URL      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	// Params holds adapter-specific settings, decoded by each adapter with mapstructure.
	Params map[string]any
}
