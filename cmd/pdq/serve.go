package main

import (
	"github.com/spf13/cobra"

	"github.com/pdq-signal-server/internal/api"
	"github.com/pdq-signal-server/internal/mcp"
	"github.com/pdq-signal-server/internal/metrics"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			m := metrics.New()
			r, cleanup, err := a.newRunner(ctx, m)
			if err != nil {
				return err
			}
			defer cleanup()

			server := api.NewServer(a.configManager, r, m, a.logger)
			if err := server.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}
}

func mcpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the dashboard sections as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			r, cleanup, err := a.newRunner(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			server := mcp.NewServer(a.configManager.GetConfig().MCP, r, a.logger)
			return server.Start(ctx)
		},
	}
}
