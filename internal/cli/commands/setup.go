package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/cli/config"
	"github.com/leapstack-labs/leapgis/internal/cli/output"
	"github.com/leapstack-labs/leapgis/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: r,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that only read the catalog.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or defaults when the root
// command did not load one (commands run standalone in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != "" && cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	engineCfg := engine.Config{
		Adapter:     cfg.Engine.AdapterConfig(),
		StatePath:   cfg.StatePath,
		Timeout:     cfg.Timeout,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}

	return engine.New(engineCfg)
}
