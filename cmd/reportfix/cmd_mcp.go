package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/reportfix/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run reportfix as an MCP (Model Context Protocol) server over stdio",
		Long: `Start an MCP server that exposes the correction pipeline over stdio:

  • correct_report - correct a report with the selected types and model
  • recent_audit   - list the newest audit entries

Example client configuration:

  {
    "mcpServers": {
      "reportfix": {
        "command": "reportfix",
        "args": ["mcp", "--config", "/etc/reportfix/config.yaml"]
      }
    }
  }
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			srv := mcpserver.New(a.Orchestrator(), a.Audit(),
				mcpserver.WithVersion(version),
				mcpserver.WithQuality(a.Quality()),
				mcpserver.WithMetrics(a.Metrics()),
			)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}
