package config

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leapgis.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leapgis.yml"

// FindConfigFile returns the config file in dir, or "" when there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir, at most maxLevels directories, to
// find a directory containing leapgis.yaml or leapgis.yml.
// Returns empty string if not found.
func FindProjectRoot(startDir string, maxLevels int) string {
	dir := startDir
	for i := 0; i < maxLevels; i++ {
		if FindConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
	return ""
}

// MergeEngineConfig merges two engine configs, with override taking precedence.
func MergeEngineConfig(base, override *EngineConfig) *EngineConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	// Start with a copy of base
	merged := *base
	merged.Options = make(map[string]string, len(base.Options)+len(override.Options))
	merged.Params = make(map[string]any, len(base.Params)+len(override.Params))
	for k, v := range base.Options {
		merged.Options[k] = v
	}
	for k, v := range base.Params {
		merged.Params[k] = v
	}

	// Apply overrides
	if override.Type != "" && override.Type != base.Type {
		// A different engine shares nothing but explicit overrides.
		merged = EngineConfig{Type: override.Type, Options: map[string]string{}, Params: map[string]any{}}
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.URL != "" {
		merged.URL = override.URL
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}

	// Merge options and params (override takes precedence)
	for k, v := range override.Options {
		merged.Options[k] = v
	}
	for k, v := range override.Params {
		merged.Params[k] = v
	}

	return &merged
}
