package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/patchwork-labs/pilot/internal/store"
	"github.com/spf13/cobra"
)

var cleanupWorkspaces bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <pipeline-id>",
	Short: "Delete a run's stored artifacts (and optionally its workspace)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.DefaultStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}

		id := args[0]
		var workspaceRoot string
		if rec, err := st.GetRecord(id); err == nil {
			workspaceRoot = rec.WorkspaceRoot
		}

		if err := st.Delete(id); err != nil {
			return err
		}
		cmd.Printf("Deleted artifacts for run %s\n", id)

		if cleanupWorkspaces && workspaceRoot != "" {
			// Refuse to remove anything that does not end in the pipeline id;
			// a corrupted record must not take an unrelated directory with it.
			if filepath.Base(workspaceRoot) != id {
				return fmt.Errorf("workspace path %s does not match run %s; not removing", workspaceRoot, id)
			}
			if err := os.RemoveAll(workspaceRoot); err != nil {
				return fmt.Errorf("remove workspace: %w", err)
			}
			cmd.Printf("Removed workspace %s\n", workspaceRoot)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupWorkspaces, "workspace", false, "also remove the run's workspace directory")
}
