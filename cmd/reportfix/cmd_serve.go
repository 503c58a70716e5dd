package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/reportfix/internal/app"
	"github.com/MrWong99/reportfix/internal/config"
	"github.com/MrWong99/reportfix/internal/observe"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Start the HTTP API: corrections, audit trail, exports, catalog, the live
preview WebSocket, health probes and Prometheus metrics.

When --config names a file it is watched; a changed log level applies
immediately, other changes are logged and need a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cmd.OutOrStdout(), cfg, path)
		},
	}
}

func serve(parent context.Context, out io.Writer, cfg *config.Config, path string) error {
	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(levelFor(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("reportfix starting",
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config watcher ────────────────────────────────────────────────────────
	if path != "" {
		w, err := config.NewWatcher(path, func(_, _ *config.Config, diff config.ConfigDiff) {
			if diff.LogLevelChanged {
				level.Set(levelFor(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
			if len(diff.RestartRequired) > 0 {
				slog.Warn("config changed, restart to apply", "sections", diff.RestartRequired)
			}
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer w.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(out, cfg)

	application, err := app.New(ctx, cfg, app.WithMetricsHandler(tel.MetricsHandler()))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       reportfix · startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	summaryRow(w, "Listen addr", cfg.Server.ListenAddr)
	summaryRow(w, "Types", fmt.Sprintf("%d enabled / %d", countEnabled(cfg), len(cfg.CorrectionTypes)))
	for _, m := range cfg.Models {
		label := m.Backend.Name
		if m.IsLocal() {
			label = "local"
		}
		if m.Primary {
			label += " *"
		}
		summaryRow(w, "Model "+m.ID, label)
	}
	summaryRow(w, "Fallback", cfg.Pipeline.FallbackModel)
	summaryRow(w, "Audit", auditLabel(cfg.Audit))
	if cfg.RetrievalEnabled() {
		summaryRow(w, "Sources", fmt.Sprintf("%d", len(cfg.KnowledgeSources)))
	} else {
		summaryRow(w, "Sources", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func summaryRow(w io.Writer, key, value string) {
	if len(key) > 14 {
		key = key[:13] + "…"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", key, value)
}

func countEnabled(cfg *config.Config) int {
	n := 0
	for _, ct := range cfg.CorrectionTypeDefs() {
		if ct.Enabled {
			n++
		}
	}
	return n
}

func auditLabel(a config.AuditConfig) string {
	switch {
	case a.PostgresDSN != "":
		return "postgres"
	case a.SQLitePath != "":
		return "sqlite"
	default:
		return "memory only"
	}
}
