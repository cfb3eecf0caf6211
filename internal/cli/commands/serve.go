package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgis/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dispatch API over HTTP",
		Long: `Start the HTTP API. Clients open a session, import or produce layers in it
and invoke operations or pipelines against those layers.

Routes:
  GET    /v1/operations
  GET    /v1/operations/{name}
  GET    /v1/tools
  POST   /v1/sessions
  DELETE /v1/sessions/{id}
  GET    /v1/sessions/{id}/layers
  POST   /v1/sessions/{id}/layers
  DELETE /v1/sessions/{id}/layers/{layer}
  POST   /v1/sessions/{id}/invoke
  POST   /v1/sessions/{id}/pipelines`,
		Example: `  # Serve on the configured address (default :8742)
  leapgis serve

  # Serve on another port
  leapgis serve --addr 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default: server.addr from config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := opts.Addr
	if addr == "" {
		addr = cmdCtx.Cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(server.Config{
		Engine: cmdCtx.Engine,
		Addr:   addr,
		Logger: cmdCtx.Logger,
	})
	cmdCtx.Renderer.Println(cmdCtx.Renderer.Muted("listening on " + addr + " (ctrl-c to stop)"))
	return srv.Serve(ctx)
}
