package cli

import (
	"fmt"
	"time"

	"github.com/patchwork-labs/pilot/internal/agent"
	"github.com/patchwork-labs/pilot/internal/config"
	"github.com/patchwork-labs/pilot/internal/db"
	"github.com/patchwork-labs/pilot/internal/orchestrator"
	"github.com/patchwork-labs/pilot/internal/store"
	"github.com/patchwork-labs/pilot/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	runSourceRepo     string
	runWorkspaceKind  string
	runPreserve       bool
	runMaxRevisions   int
	runScoreThreshold float64
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a change request through the full pipeline",
	Long: `Runs the five-stage pipeline for a change request. The request is a
plain-language description of the change; each stage is handled by the agent
command configured for it.

Exits non-zero when the pipeline fails. A run that stops for approval exits
zero and reports the reason.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("  - %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}

		agents, err := buildAgents(cfg)
		if err != nil {
			return err
		}

		opts := orchestrator.Options{
			BaseDir:           cfg.Pilot.WorkspaceDir,
			WorkspaceKind:     workspace.Kind(cfg.Pilot.WorkspaceKind),
			SourceRepo:        cfg.Pilot.SourceRepo,
			PreserveOnFailure: cfg.Pilot.PreserveOnFailure || runPreserve,
			Progress:          cmd.OutOrStdout(),
			Caps: orchestrator.Caps{
				MaxRevisions:   runMaxRevisions,
				ScoreThreshold: runScoreThreshold,
			},
		}
		if runSourceRepo != "" {
			opts.SourceRepo = runSourceRepo
		}
		if runWorkspaceKind != "" {
			opts.WorkspaceKind = workspace.Kind(runWorkspaceKind)
		}

		// Persistence is best-effort; a broken database never blocks a run.
		if dbPath, err := db.DefaultDBPath(); err == nil {
			if events, err := db.Open(dbPath); err == nil {
				defer events.Close()
				opts.Events = events
			}
		}
		if st, err := store.DefaultStore(); err == nil {
			opts.Artifacts = st
		}

		o := orchestrator.New(agents, opts)
		res := o.Run(cmd.Context(), args[0])

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "\nPipeline %s\n", res.Context.ID)
		fmt.Fprintf(w, "  Status:   %s\n", res.Status)
		fmt.Fprintf(w, "  Stage:    %s\n", res.FinalStage)
		fmt.Fprintf(w, "  Duration: %s\n", res.Duration.Round(time.Millisecond))
		if res.Context.RevisionIteration > 0 {
			fmt.Fprintf(w, "  Revisions: %d\n", res.Context.RevisionIteration)
		}
		if len(res.Context.AppliedFiles) > 0 {
			fmt.Fprintln(w, "  Applied files:")
			for _, f := range res.Context.AppliedFiles {
				fmt.Fprintf(w, "    %s\n", f)
			}
		}

		switch res.Status {
		case orchestrator.StatusAwaitingApproval:
			fmt.Fprintf(w, "  Approval needed: %s\n", res.Context.ApprovalReason)
			fmt.Fprintf(w, "  Workspace preserved at %s\n", res.Context.WorkspaceRoot)
			return nil
		case orchestrator.StatusFailed:
			return fmt.Errorf("pipeline failed: %s", res.Err)
		default:
			if res.Context.TestFailures > 0 {
				fmt.Fprintf(w, "  Test failures: %d\n", res.Context.TestFailures)
			}
			fmt.Fprintf(w, "  Workspace: %s\n", res.Context.WorkspaceRoot)
			return nil
		}
	},
}

// buildAgents turns the validated config's agent entries into executable
// CLI agents, one per stage.
func buildAgents(cfg *config.PilotConfig) (orchestrator.Agents, error) {
	build := func(name string) (agent.Agent, error) {
		a := cfg.Pilot.Agents[name]
		cli := &agent.CLIAgent{Command: a.Command, Args: a.Args, Model: a.Model}
		if a.Timeout != "" {
			d, err := time.ParseDuration(a.Timeout)
			if err != nil {
				return nil, fmt.Errorf("agent %s: invalid timeout %q", name, a.Timeout)
			}
			cli.Timeout = d
		}
		return cli, nil
	}

	var agents orchestrator.Agents
	var err error
	if agents.Planner, err = build("planner"); err != nil {
		return agents, err
	}
	if agents.Coder, err = build("coder"); err != nil {
		return agents, err
	}
	if agents.Reviewer, err = build("reviewer"); err != nil {
		return agents, err
	}
	if agents.Tester, err = build("tester"); err != nil {
		return agents, err
	}
	if agents.Evaluator, err = build("evaluator"); err != nil {
		return agents, err
	}
	return agents, nil
}

func init() {
	runCmd.Flags().StringVar(&runSourceRepo, "source-repo", "", "stage this repository into the workspace before planning")
	runCmd.Flags().StringVar(&runWorkspaceKind, "workspace-kind", "", "override workspace kind (production or test)")
	runCmd.Flags().BoolVar(&runPreserve, "preserve", false, "keep the workspace when the pipeline fails")
	runCmd.Flags().IntVar(&runMaxRevisions, "max-revisions", 0, "override the revision loop cap")
	runCmd.Flags().Float64Var(&runScoreThreshold, "score-threshold", 0, "override the evaluator acceptance threshold")
}
