package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/cli/output"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// CatalogOptions holds options for the catalog command.
type CatalogOptions struct {
	Tools bool
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	opts := &CatalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog [operation]",
		Short: "List the operations the dispatcher accepts",
		Long: `List every catalog operation with its parameters, or show one operation.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown format (agent-friendly)

Use --tools to print function-calling tool definitions as JSON.`,
		Example: `  # List all operations
  leapgis catalog

  # Show the buffer contract
  leapgis catalog native_buffer

  # Export tool definitions for an LLM
  leapgis catalog --tools > tools.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Tools, "tools", false, "Print function-calling tool definitions as JSON")

	return cmd
}

func runCatalog(cmd *cobra.Command, args []string, opts *CatalogOptions) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	r := cmdCtx.Renderer
	reg := catalog.Default()

	contracts := reg.List()
	if len(args) == 1 {
		c, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		contracts = []*core.OperationContract{c}
	}

	if opts.Tools {
		tools := catalog.Tools(reg)
		if len(args) == 1 {
			tools = []catalog.Tool{{
				Type: "function",
				Function: catalog.ToolFunction{
					Name:        string(contracts[0].Name),
					Description: contracts[0].Description,
					Parameters:  catalog.ParametersSchema(contracts[0]),
				},
			}}
		}
		return r.JSON(tools)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		views := make([]catalog.OperationView, 0, len(contracts))
		for _, c := range contracts {
			views = append(views, catalog.NewOperationView(c))
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		catalogMarkdown(r, contracts)
	default:
		catalogText(r, contracts)
	}
	return nil
}

// catalogText prints one table row per operation, or the parameter table
// for a single operation.
func catalogText(r *output.Renderer, contracts []*core.OperationContract) {
	if len(contracts) == 1 {
		c := contracts[0]
		r.Header(1, fmt.Sprintf("%s (%s)", c.Name, c.Name.AlgorithmID()))
		r.Println(c.Description)
		r.Println("")
		r.Table(paramHeader, paramRows(c))
		return
	}

	r.Header(1, fmt.Sprintf("Operations (%d total)", len(contracts)))
	rows := make([][]string, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, []string{string(c.Name), c.Name.AlgorithmID(), string(c.Output), paramSummary(c)})
	}
	r.Table([]string{"Operation", "Algorithm", "Output", "Parameters"}, rows)
	r.Println(r.Muted("* required"))
}

func catalogMarkdown(r *output.Renderer, contracts []*core.OperationContract) {
	if len(contracts) > 1 {
		r.Println(output.FormatHeader(1, fmt.Sprintf("Operations (%d total)", len(contracts))))
		r.Println("")
	}
	for _, c := range contracts {
		r.Println(output.FormatHeader(2, string(c.Name)))
		r.Println("")
		r.Println(c.Description)
		r.Println("")
		r.Println(output.FormatKeyValue("Algorithm", c.Name.AlgorithmID()))
		r.Println(output.FormatKeyValue("Output", c.Output))
		r.Println("")
		r.Table(paramHeader, paramRows(c))
		r.Println("")
	}
}

var paramHeader = []string{"Parameter", "Type", "Required", "Default", "Description"}

func paramRows(c *core.OperationContract) [][]string {
	rows := make([][]string, 0, len(c.Params))
	for i := range c.Params {
		p := &c.Params[i]
		typ := string(p.Type)
		if p.IsReference() {
			typ = "layer<" + string(p.LayerKind) + ">"
			if p.Shape == core.ShapeArray {
				typ = "array<" + typ + ">"
			}
		}
		if len(p.Enum) > 0 {
			typ = strings.Join(p.Enum, "|")
		}
		required := ""
		if p.Required {
			required = "yes"
		}
		def := ""
		if p.Default != nil {
			def = p.Default.String()
		}
		rows = append(rows, []string{p.Name, typ, required, def, p.Description})
	}
	return rows
}

// paramSummary lists parameter names, required ones starred.
func paramSummary(c *core.OperationContract) string {
	names := make([]string, 0, len(c.Params))
	for i := range c.Params {
		name := c.Params[i].Name
		if c.Params[i].Required {
			name += "*"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
