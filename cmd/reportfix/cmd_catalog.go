package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show correction types, models, knowledge sources and export formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			cat := a.Catalog()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cat)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CORRECTION TYPE\tPRIORITY\tENABLED\tDESCRIPTION")
			for _, ct := range cat.CorrectionTypes {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", ct.ID, ct.Priority, ct.Enabled, ct.Description)
			}
			fmt.Fprintln(tw, "\nMODEL\tPROVIDER\tENABLED\tPRIMARY")
			for _, m := range cat.Models {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", m.ID, m.Provider, m.Enabled, m.Primary)
			}
			fmt.Fprintln(tw, "\nSOURCE\tWEIGHT\tENABLED\tUPDATED")
			for _, s := range cat.KnowledgeSources {
				fmt.Fprintf(tw, "%s\t%.2f\t%t\t%s\n", s.ID, s.Weight, s.Enabled, s.LastUpdated.Format("2006-01-02"))
			}
			fmt.Fprintln(tw, "\nEXPORT FORMAT\tENABLED")
			for _, f := range cat.ExportFormats {
				fmt.Fprintf(tw, "%s\t%t\n", f.ID, f.Enabled)
			}
			return tw.Flush()
		},
	}
}
