package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/reportfix/internal/httpapi"
	"github.com/MrWong99/reportfix/pkg/types"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative, got %d", limit)
			}

			a, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			entries, src, err := a.Audit().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []types.AuditEntry{}
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), httpapi.AuditResponse{Source: src, Entries: entries})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tTIME\tMODEL\tTYPES\tCONFIDENCE\tDEGRADED\n")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%t\n",
					e.ID,
					e.Timestamp.Format(time.RFC3339),
					e.ModelUsed,
					strings.Join(e.RequestedTypes, ","),
					e.Confidence,
					e.Degraded,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "%d entries from %s store\n", len(entries), src)
			return err
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries (0 = retention bound)")
	return cmd
}
