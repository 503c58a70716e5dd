// Command reportfix is the entry point for the clinical report correction
// service. It serves the HTTP API, runs one-shot corrections from the shell
// and exposes the pipeline as an MCP tool server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/reportfix/internal/app"
	"github.com/MrWong99/reportfix/internal/config"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reportfix: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reportfix",
		Short: "Clinical report correction service",
		Long: `reportfix corrects free-text clinical reports with configurable rule-based
strategies and optional remote language models, scores the result, ranks
reference guidelines and keeps an audit trail of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	root.PersistentFlags().Bool("json", false, "output as JSON")

	root.AddCommand(
		newServeCmd(),
		newCorrectCmd(),
		newAuditCmd(),
		newCatalogCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reportfix version %s\n", version)
			return err
		},
	}
}

// ── Configuration ─────────────────────────────────────────────────────────────

// loadConfig reads the file named by --config, or returns the built-in
// defaults when the flag is empty. The returned path is "" for defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
		}
		return nil, path, err
	}
	return cfg, path, nil
}

// openApp loads the config and wires an application for a one-shot command.
// The returned close func shuts it down.
func openApp(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(newLogger(levelFor(cfg.Server.LogLevel)))

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise application: %w", err)
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}
	return a, closeFn, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func levelFor(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger writes text logs to stderr. Stdout stays free for command output
// and the MCP stdio transport.
func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
