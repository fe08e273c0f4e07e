package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DayuGuo/DEVONthink-agent/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve exposes hybrid_search, semantic_search, build_index and
index_status as MCP tools over stdio, for use from an AI assistant's
MCP client configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := mcp.NewServer(app.engine, app.manager, app.store, app.cfg, app.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if transport == "" {
				transport = app.cfg.Server.Transport
			}
			app.logger.Info("mcp server starting", "transport", transport)
			return server.Serve(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Server transport (stdio)")

	return cmd
}
