package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/leapstack-labs/leapgis/internal/config"
)

// loggerKey is used to store logger in context.
// This key is shared with root.go via both using the same type.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// envPrefix marks environment variables read as config.
const envPrefix = "LEAPGIS_"

// flagKeys maps CLI flag names onto config keys where they differ.
var flagKeys = map[string]string{
	"state":  "state_path",
	"env":    "environment",
	"engine": "engine.type",
	"config": "",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// envKey transforms LEAPGIS_ENGINE__PARAMS__BUCKET into engine.params.bucket.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key == "engine" {
		return "engine.type"
	}
	return strings.ReplaceAll(key, "__", ".")
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Directory of an explicit config file
//  2. Search upward from CWD for leapgis.yaml
//  3. Current working directory
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
		return filepath.Dir(cfgFile)
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := intconfig.FindProjectRoot(cwd, maxUpwardSearchLevels); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// LoadConfig loads configuration from defaults, file, environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// envOverride selects the environments entry to apply; empty uses the
// configured environment.
func LoadConfig(cfgFile, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")
	configFileUsed = ""

	projectRoot := inferProjectRoot(cfgFile)

	// Paths given as flags are relative to the CWD, not the project root.
	var flagStatePath string
	if flags != nil && flags.Changed("state") {
		if v, _ := flags.GetString("state"); v != "" {
			flagStatePath, _ = filepath.Abs(v)
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"state_path":  DefaultStateFile,
		"environment": DefaultEnv,
		"verbose":     false,
		"output":      DefaultOutput,
		"timeout":     DefaultTimeout.String(),
		"concurrency": DefaultConcurrency,
		"engine.type": intconfig.DefaultEngine,
		"server.addr": DefaultServerAddr,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = intconfig.FindConfigFile(projectRoot)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Load environment variables (LEAPGIS_ prefix)
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// Apply environment-specific overrides
	envName := cfg.Environment
	if envOverride != "" {
		envName = envOverride
		cfg.Environment = envOverride
	}
	if envCfg, ok := cfg.Environments[envName]; ok {
		if envCfg.StatePath != "" && flagStatePath == "" {
			cfg.StatePath = envCfg.StatePath
		}
		if envCfg.Engine != nil {
			cfg.Engine = intconfig.MergeEngineConfig(cfg.Engine, envCfg.Engine)
		}
	} else if envOverride != "" {
		return nil, fmt.Errorf("unknown environment %q\nHint: define environments.%s in %s", envOverride, envOverride, intconfig.ConfigFileName)
	}

	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}

	if cfg.Engine == nil {
		cfg.Engine = &EngineConfig{}
	}
	intconfig.ApplyEngineDefaults(cfg.Engine)
	expandEngineEnvVars(cfg.Engine)
	if cfg.Engine.Type == "duckdb" {
		cfg.Engine.Path = resolvePathRelativeTo(cfg.Engine.Path, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store config for access by commands
	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandEngineEnvVars expands environment variables in sensitive engine fields
// and in string params (object store credentials).
func expandEngineEnvVars(e *EngineConfig) {
	e.Password = expandEnvVars(e.Password)
	e.User = expandEnvVars(e.User)
	e.Host = expandEnvVars(e.Host)
	e.URL = expandEnvVars(e.URL)
	e.Database = expandEnvVars(e.Database)
	for key, v := range e.Params {
		if s, ok := v.(string); ok {
			e.Params[key] = expandEnvVars(s)
		}
	}
}
