package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/engine"
)

// watchDebounce coalesces bursts of file events into one rerun.
const watchDebounce = 200 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Watch  bool
	Export string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline file",
		Long: `Import the layers a pipeline declares and run its steps.

Steps run as soon as the layers they reference exist; independent steps run
concurrently up to the configured concurrency. Results are printed in the
order the steps are declared and every run is recorded in the state database.`,
		Example: `  # Run a pipeline
  leapgis run pipeline.yaml

  # Write every output layer to ./out
  leapgis run pipeline.yaml --export out

  # Rerun whenever the pipeline or its input files change
  leapgis run pipeline.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun when the pipeline or its layer files change")
	cmd.Flags().StringVar(&opts.Export, "export", "", "Directory to write output layers to")

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.Watch {
		return runPipelineOnce(cmd.Context(), cmdCtx, path, opts.Export)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchPipeline(ctx, cmdCtx, path, opts.Export)
}

// runPipelineOnce runs the pipeline in a fresh session.
func runPipelineOnce(ctx context.Context, cmdCtx *CommandContext, path, exportDir string) error {
	p, err := engine.LoadPipeline(path)
	if err != nil {
		return err
	}

	sess, err := cmdCtx.Engine.NewSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(ctx) }()

	report, runErr := sess.RunPipeline(ctx, p, engine.RunOptions{})
	if report == nil {
		return runErr
	}
	if err := renderReport(cmdCtx.Renderer, report, runErr); err != nil {
		return err
	}
	if err := exportResults(ctx, cmdCtx.Renderer, sess, report, exportDir); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("pipeline %s failed: %w", filepath.Base(path), runErr)
	}
	return nil
}

// watchPipeline runs the pipeline, then reruns it on every change to the
// pipeline file or the layer files it imports until ctx is done.
func watchPipeline(ctx context.Context, cmdCtx *CommandContext, path, exportDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := make(map[string]bool)
	rewatch := func() {
		files := []string{path}
		if p, err := engine.LoadPipeline(path); err == nil {
			dir := filepath.Dir(path)
			for _, src := range p.Layers {
				f := src.Path
				if !filepath.IsAbs(f) {
					f = filepath.Join(dir, f)
				}
				files = append(files, f)
			}
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				continue
			}
			watched[abs] = true
			// Watch directories: editors replace files instead of writing them.
			if err := watcher.Add(filepath.Dir(abs)); err != nil {
				cmdCtx.Logger.Warn("failed to watch", "path", abs, "error", err)
			}
		}
	}

	r := cmdCtx.Renderer
	runOnce := func() {
		if err := runPipelineOnce(ctx, cmdCtx, path, exportDir); err != nil && !errors.Is(err, context.Canceled) {
			r.Error(err.Error())
		}
		r.Println(r.Muted(fmt.Sprintf("watching %s for changes (ctrl-c to stop)", path)))
	}

	rewatch()
	runOnce()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			cmdCtx.Logger.Debug("change detected", "file", event.Name)
			debounce = time.After(watchDebounce)
		case <-debounce:
			debounce = nil
			rewatch()
			runOnce()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmdCtx.Logger.Warn("watcher error", "error", err)
		}
	}
}
