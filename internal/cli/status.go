package cli

import (
	"fmt"

	"github.com/patchwork-labs/pilot/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [pipeline-id]",
	Short: "Show the status of the most recent run (or a specific run)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		var rec *store.RunRecord
		if len(args) == 1 {
			rec, err = st.GetRecord(args[0])
			if err != nil {
				return err
			}
		} else {
			records, err := st.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("No runs found.")
				return nil
			}
			rec = &records[len(records)-1]
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Pipeline %s\n", rec.PipelineID)
		fmt.Fprintf(w, "  Request: %s\n", rec.Request)
		fmt.Fprintf(w, "  Status:  %s\n", rec.Status)
		fmt.Fprintf(w, "  Stage:   %s\n", rec.FinalStage)
		if rec.Error != "" {
			fmt.Fprintf(w, "  Error:   %s\n", rec.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
