package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/reportfix/internal/httpapi"
	"github.com/MrWong99/reportfix/internal/pipeline"
	"github.com/MrWong99/reportfix/pkg/types"
)

func newCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Correct one report read from a file or stdin",
		Long: `Run one correction through the full pipeline and record it in the audit
trail. The corrected text goes to stdout; the summary goes to stderr.

Examples:
  reportfix correct --type terminology --type clarity --file report.txt
  cat report.txt | reportfix correct --type structure --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typeIDs, _ := cmd.Flags().GetStringSlice("type")
			modelID, _ := cmd.Flags().GetString("model")
			file, _ := cmd.Flags().GetString("file")

			text, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			out, err := a.Orchestrator().Run(cmd.Context(), types.CorrectionRequest{
				Text:              text,
				CorrectionTypeIDs: typeIDs,
				ModelID:           modelID,
			})
			if err != nil {
				var verr *pipeline.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("invalid request: %s: %s", verr.Field, verr.Reason)
				}
				return fmt.Errorf("correction failed: %w", err)
			}

			resp := httpapi.NewCorrectionResponse(out, a.Quality())
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), resp.CorrectedText); err != nil {
				return err
			}
			printCorrectionSummary(cmd.ErrOrStderr(), resp)
			return nil
		},
	}

	cmd.Flags().StringSlice("type", nil, "correction type ID to apply (repeatable)")
	cmd.Flags().String("model", "", "model ID (default model when empty)")
	cmd.Flags().String("file", "", "read the report from this file instead of stdin")
	return cmd
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read report: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printCorrectionSummary(w io.Writer, r httpapi.CorrectionResponse) {
	fmt.Fprintf(w, "\nmodel: %s", r.ModelUsed.ID)
	if r.Degraded {
		fmt.Fprint(w, " (degraded)")
	}
	fmt.Fprintf(w, "  confidence: %.2f  audit: %s\n", r.QualityMetrics.Confidence(), r.AuditID)
	for _, ac := range r.AppliedCorrections {
		fmt.Fprintf(w, "  %-22s %3d  %s\n", ac.Type, ac.Count, ac.Description)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", warn.Code, warn.Message)
	}
	if len(r.RankedSources) > 0 {
		names := make([]string, len(r.RankedSources))
		for i, s := range r.RankedSources {
			names[i] = s.Name
		}
		fmt.Fprintf(w, "sources: %s\n", strings.Join(names, ", "))
	}
}
