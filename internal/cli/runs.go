package cli

import (
	"fmt"
	"strings"

	"github.com/patchwork-labs/pilot/internal/store"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		statusFilter, _ := cmd.Flags().GetString("status")
		records, err := st.List()
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		w := cmd.OutOrStdout()
		shown := 0
		for _, rec := range records {
			if statusFilter != "" && rec.Status != statusFilter {
				continue
			}
			if shown == 0 {
				fmt.Fprintf(w, "%-38s %-22s %-18s %s\n", "PIPELINE", "STATUS", "STAGE", "REQUEST")
				fmt.Fprintf(w, "%-38s %-22s %-18s %s\n",
					strings.Repeat("-", 38),
					strings.Repeat("-", 22),
					strings.Repeat("-", 18),
					strings.Repeat("-", 7))
			}
			fmt.Fprintf(w, "%-38s %-22s %-18s %s\n", rec.PipelineID, rec.Status, rec.FinalStage, truncate(rec.Request, 60))
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(w, "No runs found.")
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <pipeline-id>",
	Short: "Show detailed status for one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		rec, err := st.GetRecord(args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Pipeline %s\n", rec.PipelineID)
		fmt.Fprintf(w, "  Request:     %s\n", rec.Request)
		fmt.Fprintf(w, "  Status:      %s\n", rec.Status)
		fmt.Fprintf(w, "  Final Stage: %s\n", rec.FinalStage)
		if rec.Error != "" {
			fmt.Fprintf(w, "  Error:       %s\n", rec.Error)
		}
		if rec.RevisionIteration > 0 {
			fmt.Fprintf(w, "  Revisions:   %d\n", rec.RevisionIteration)
		}
		if rec.TestFailures > 0 {
			fmt.Fprintf(w, "  Test Failures: %d\n", rec.TestFailures)
		}
		if rec.WorkspaceRoot != "" {
			fmt.Fprintf(w, "  Workspace:   %s\n", rec.WorkspaceRoot)
		}
		fmt.Fprintf(w, "  Started:     %s\n", rec.StartedAt)
		if rec.CompletedAt != "" {
			fmt.Fprintf(w, "  Completed:   %s\n", rec.CompletedAt)
		}
		if len(rec.AppliedFiles) > 0 {
			fmt.Fprintln(w, "  Applied Files:")
			for _, f := range rec.AppliedFiles {
				fmt.Fprintf(w, "    %s\n", f)
			}
		}
		return nil
	},
}

var runsArtifactCmd = &cobra.Command{
	Use:   "artifact <pipeline-id> <name>",
	Short: "Print a stored stage artifact (plan.json, patch.txt, review.json, test_report.json, scores.json)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		data, err := st.GetArtifact(args[0], args[1])
		if err != nil {
			return fmt.Errorf("artifact %s for run %s: %w", args[1], args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), data)
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsArtifactCmd)

	runsListCmd.Flags().String("status", "", "Filter by status (success, passed_with_warnings, failed, awaiting_approval)")
}
