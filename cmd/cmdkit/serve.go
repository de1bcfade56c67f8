package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Serve workflows, commands and tasks to an AI assistant over MCP stdio",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotStdio: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		srv := mcp.NewServer(mcp.ServerDeps{
			Workflows: app.workflows,
			Commands:  app.commands,
			Store:     app.store,
			Hub:       app.hub,
			Logger:    app.logger,
			Version:   version,
		})
		app.logger.Info("mcp server listening on stdio", "version", version)
		return srv.Serve(cmd.Context())
	},
}
