package cli

import (
	"fmt"

	"github.com/patchwork-labs/pilot/internal/db"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <pipeline-id>",
	Short: "Show the event log for a pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		d, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open event db: %w", err)
		}
		defer d.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := d.Events(args[0], limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			cmd.Println("No events found.")
			return nil
		}

		w := cmd.OutOrStdout()
		for _, e := range events {
			if e.Detail != "" {
				fmt.Fprintf(w, "%s  %-20s %-18s %s\n", e.Timestamp, e.Event, e.Stage, e.Detail)
			} else {
				fmt.Fprintf(w, "%s  %-20s %s\n", e.Timestamp, e.Event, e.Stage)
			}
		}

		runs, err := d.StageRuns(args[0])
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Fprintln(w, "\nStage runs:")
			for _, r := range runs {
				fmt.Fprintf(w, "  %-12s %-8s %6dms", r.Stage, r.Outcome, r.DurationMs)
				if r.Detail != "" {
					fmt.Fprintf(w, "  %s", r.Detail)
				}
				fmt.Fprintln(w)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 100, "maximum number of events to show")
}
