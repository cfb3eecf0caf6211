// Package config provides configuration management for the leapgis CLI.
//
// This package extends the shared configuration types from internal/config
// with CLI-specific fields and functionality. The shared types are
// re-exported here via type aliases for convenience.
package config

import (
	"time"

	sharedcfg "github.com/leapstack-labs/leapgis/internal/config"
)

// EngineConfig is an alias for the shared engine configuration.
type EngineConfig = sharedcfg.EngineConfig

// ServerConfig is an alias for the shared HTTP server configuration.
type ServerConfig = sharedcfg.ServerConfig

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Timeout      time.Duration        `koanf:"timeout"`
	Concurrency  int                  `koanf:"concurrency"`
	Engine       *EngineConfig        `koanf:"engine"`
	Server       ServerConfig         `koanf:"server"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	StatePath string        `koanf:"state_path"`
	Engine    *EngineConfig `koanf:"engine"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultStateFile   = sharedcfg.DefaultStatePath
	DefaultEnv         = sharedcfg.DefaultEnv
	DefaultOutput      = sharedcfg.DefaultOutput
	DefaultTimeout     = sharedcfg.DefaultTimeout
	DefaultConcurrency = sharedcfg.DefaultConcurrency
	DefaultServerAddr  = sharedcfg.DefaultServerAddr
)

// Default returns the configuration used when nothing was loaded.
func Default() *Config {
	eng := &EngineConfig{}
	sharedcfg.ApplyEngineDefaults(eng)
	return &Config{
		StatePath:    DefaultStateFile,
		Environment:  DefaultEnv,
		OutputFormat: DefaultOutput,
		Timeout:      DefaultTimeout,
		Concurrency:  DefaultConcurrency,
		Engine:       eng,
		Server:       ServerConfig{Addr: DefaultServerAddr},
	}
}
