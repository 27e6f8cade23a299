package cmd

import (
	"appserver/api"
	"appserver/bootstrap"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand
func newServeCmd(controllers []api.Controller) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server on the configured port.

The database connection is started in the background; requests are served
before it completes unless database.wait_for_connection is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := []bootstrap.Option{bootstrap.WithControllers(controllers...)}
			if cmd.Flags().Changed("port") {
				opts = append(opts, bootstrap.WithPort(port))
			}

			app, err := bootstrap.NewApp(ctx, opts...)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.WaitForShutdown(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")

	return cmd
}
