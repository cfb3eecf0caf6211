// Package cli provides the command-line interface for leapgis.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/cli/commands"
	"github.com/leapstack-labs/leapgis/internal/cli/config"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

var (
	cfgFile string
	envFlag string
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapgis",
		Short: "leapgis - Geospatial Operation Dispatch",
		Long: `leapgis validates geospatial operation requests against a fixed catalog,
resolves references between them and dispatches them to a geoprocessing
engine (in-process, PostGIS, DuckDB spatial or a QGIS processing service).

Requests can be invoked one at a time, run as pipeline files, or served over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, envFlag, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, config.LoggerKey(), logger))

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			logger.Debug("using engine", "type", cfg.Engine.Type, "environment", cfg.Environment)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Geospatial operation dispatch built with Go
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapgis.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "Environment to apply from the config's environments section")
	rootCmd.PersistentFlags().String("engine", "", "Engine type ("+fmt.Sprint(adapter.ListAdapters())+")")
	rootCmd.PersistentFlags().String("state", "", "Path to state database")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-operation timeout (default 5m)")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Concurrent engine calls per run (default 4)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Register completion for engine flag
	_ = rootCmd.RegisterFlagCompletionFunc("engine", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return adapter.ListAdapters(), cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewCatalogCommand())
	rootCmd.AddCommand(commands.NewInvokeCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapgis.

To load completions:

Bash:
  $ source <(leapgis completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapgis completion bash > /etc/bash_completion.d/leapgis
  # macOS:
  $ leapgis completion bash > $(brew --prefix)/etc/bash_completion.d/leapgis

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ leapgis completion zsh > "${fpath[1]}/_leapgis"

Fish:
  $ leapgis completion fish | source

  # To load completions for each session, execute once:
  $ leapgis completion fish > ~/.config/fish/completions/leapgis.fish

PowerShell:
  PS> leapgis completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
