// Copyright Bio312 course staff, 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Bio312/labfiles/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show outcomes of past fetch runs",
	Long: `Ledger prints summaries of past fetch runs from the SQLite ledger in
the output directory, newest first. With --run it lists the per-record
outcomes of one run.`,
	RunE: runLedger,
}

func init() {
	ledgerCmd.Flags().String("out-dir", "structures", "output directory the runs wrote to")
	ledgerCmd.Flags().Int("limit", 10, "number of runs to show")
	ledgerCmd.Flags().Int64("run", 0, "show per-record outcomes for one run id")

	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out-dir")

	store, err := ledger.Open(filepath.Join(outDir, ledgerDir))
	if err != nil {
		return err
	}
	defer store.Close()

	if runID, _ := cmd.Flags().GetInt64("run"); runID > 0 {
		outcomes, err := store.Outcomes(runID)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			line := fmt.Sprintf("%-20s %-10s", o.Record.ReferenceID, o.Status)
			if o.Artifact != nil {
				line += fmt.Sprintf(" %s via %s", o.Artifact.SourceID, o.Artifact.Mechanism)
			} else if o.Reason != "" {
				line += fmt.Sprintf(" (%s)", o.Reason)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "run %d  %s  %d resolved, %d skipped, %d failed (total: %d)\n",
			r.ID, r.StartedAt, r.Resolved, r.Skipped, r.Failed, r.Total())
	}
	return nil
}
