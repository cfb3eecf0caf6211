package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// InvokeOptions holds options for the invoke command.
type InvokeOptions struct {
	Inputs []string
	Params []string
	ID     string
	Export string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand() *cobra.Command {
	opts := &InvokeOptions{}

	cmd := &cobra.Command{
		Use:   "invoke <operation>",
		Short: "Run a single operation",
		Long: `Import input layers, dispatch one operation and print its result.

Each --input imports a file under the given layer identifier so parameters
can reference it. Parameters are coerced to the types the operation declares:
numbers are parsed, array parameters are split on commas.`,
		Example: `  # Buffer a point layer by 0.5 units
  leapgis invoke native_buffer --input towns=towns.geojson --param INPUT=towns --param DISTANCE=0.5

  # Merge two layers and write the result
  leapgis invoke native_mergevectorlayers \
    --input a=a.geojson --input b=b.geojson --param LAYERS=a,b --export out/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "Layer to import as id=path (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Operation parameter as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "Identifier for the output layer (default: generated)")
	cmd.Flags().StringVar(&opts.Export, "export", "", "Directory to write the output layer to")

	return cmd
}

func runInvoke(cmd *cobra.Command, op string, opts *InvokeOptions) error {
	params, err := parseParams(op, opts.Params)
	if err != nil {
		return err
	}
	inputs, err := parseInputs(opts.Inputs)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sess, err := cmdCtx.Engine.NewSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(ctx) }()

	for _, src := range inputs {
		if _, err := sess.Import(ctx, src); err != nil {
			return err
		}
	}

	req := core.Request{ID: opts.ID, Operation: op, Params: params}
	report, runErr := sess.Run(ctx, []core.Request{req}, engine.RunOptions{})
	if report == nil {
		return runErr
	}
	if err := renderReport(cmdCtx.Renderer, report, runErr); err != nil {
		return err
	}
	if err := exportResults(ctx, cmdCtx.Renderer, sess, report, opts.Export); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("%s failed: %w", op, runErr)
	}
	return nil
}

// parseInputs parses id=path pairs.
func parseInputs(raw []string) ([]engine.LayerSource, error) {
	out := make([]engine.LayerSource, 0, len(raw))
	for _, s := range raw {
		id, path, ok := strings.Cut(s, "=")
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("invalid --input %q: expected id=path", s)
		}
		out = append(out, engine.LayerSource{ID: id, Path: path})
	}
	return out, nil
}

// parseParams parses KEY=VALUE pairs, coercing values to the declared
// parameter types of op. Undeclared parameters stay strings so validation
// can report them.
func parseParams(op string, raw []string) (map[string]any, error) {
	contract, _ := catalog.Default().Get(op)
	params := make(map[string]any, len(raw))
	for _, s := range raw {
		key, val, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected KEY=VALUE", s)
		}
		params[key] = coerceParam(contract, key, val)
	}
	return params, nil
}

func coerceParam(c *core.OperationContract, key, val string) any {
	if c == nil {
		return val
	}
	spec, ok := c.Param(key)
	if !ok {
		return val
	}
	switch spec.Type {
	case core.TypeNumber:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	case core.TypeStringArray:
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return val
}
