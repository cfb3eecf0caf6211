package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/cli/output"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Long: `List recent pipeline runs from the state database, or show the steps
of one run.`,
		Example: `  # Last 20 runs
  leapgis runs

  # Steps of one run as JSON
  leapgis runs 2f9c... -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

type runView struct {
	ID          string         `json:"id"`
	Engine      string         `json:"engine"`
	Steps       int            `json:"steps"`
	Status      core.RunStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type operationRunView struct {
	RequestID   string            `json:"request_id"`
	Operation   string            `json:"operation"`
	Status      core.ResultStatus `json:"status"`
	LayerID     string            `json:"layer_id,omitempty"`
	Attempts    int               `json:"attempts"`
	Repaired    bool              `json:"repaired,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	ExecutionMS int64             `json:"execution_ms"`
}

func runRuns(cmd *cobra.Command, args []string, opts *RunsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store := cmdCtx.Engine.History()
	r := cmdCtx.Renderer

	if len(args) == 1 {
		run, err := store.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		ops, err := store.GetOperationRunsForRun(run.ID)
		if err != nil {
			return fmt.Errorf("failed to get run steps: %w", err)
		}
		return renderRunDetail(r, run, ops)
	}

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, newRunView(run))
		}
		return r.JSON(views)
	}

	if len(runs) == 0 {
		r.Println(r.Muted("No runs recorded yet"))
		return nil
	}
	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Engine,
			strconv.Itoa(run.Steps),
			string(run.Status),
			runDuration(run),
		})
	}
	r.Table([]string{"Run", "Started", "Engine", "Steps", "Status", "Duration"}, rows)
	return nil
}

func renderRunDetail(r *output.Renderer, run *core.Run, ops []*core.OperationRun) error {
	if r.EffectiveMode() == output.ModeJSON {
		steps := make([]operationRunView, 0, len(ops))
		for _, op := range ops {
			steps = append(steps, operationRunView{
				RequestID:   op.RequestID,
				Operation:   op.Operation,
				Status:      op.Status,
				LayerID:     op.LayerID,
				Attempts:    op.Attempts,
				Repaired:    op.Repaired,
				ErrorKind:   op.ErrorKind,
				Error:       op.Error,
				ExecutionMS: op.ExecutionMS,
			})
		}
		return r.JSON(struct {
			runView
			Operations []operationRunView `json:"operations"`
		}{newRunView(run), steps})
	}

	r.Header(1, "Run "+run.ID)
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Status", run.Status))
		r.Println(output.FormatKeyValue("Engine", run.Engine))
		r.Println(output.FormatKeyValue("Started", run.StartedAt.Format(time.RFC3339)))
		if run.Error != "" {
			r.Println(output.FormatKeyValue("Error", run.Error))
		}
		r.Println("")
		rows := make([][]string, 0, len(ops))
		for _, op := range ops {
			rows = append(rows, []string{op.RequestID, op.Operation, string(op.Status), op.LayerID, strconv.Itoa(op.Attempts), op.ErrorKind})
		}
		r.Table([]string{"Step", "Operation", "Status", "Layer", "Attempts", "Error"}, rows)
		return nil
	}

	r.StatusLine(run.Engine, string(run.Status), runDuration(run))
	for _, op := range ops {
		detail := fmt.Sprintf("%dms", op.ExecutionMS)
		if op.ErrorKind != "" {
			detail = op.ErrorKind + ": " + op.Error
		}
		r.StatusLine(op.RequestID+" "+op.Operation, string(op.Status), detail)
	}
	return nil
}

func newRunView(run *core.Run) runView {
	return runView{
		ID:          run.ID,
		Engine:      run.Engine,
		Steps:       run.Steps,
		Status:      run.Status,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func runDuration(run *core.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
