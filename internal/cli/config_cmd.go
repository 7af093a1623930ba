package cli

import (
	"fmt"
	"os"

	"github.com/patchwork-labs/pilot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate, inspect, and scaffold pilot configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the pilot configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}
		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		cmd.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter pilot.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "pilot.yaml"
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; refusing to overwrite", path)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		cmd.Printf("Wrote %s; edit the agent commands, then run `pilot config validate`.\n", path)
		return nil
	},
}

const starterConfig = `pilot:
  name: my-project
  # Repository whose project metadata is staged into each workspace.
  source_repo: ""
  # workspace_dir defaults to ~/.pilot/workspaces
  workspace_kind: production
  preserve_on_failure: false
  defaults:
    command: agent-cli
    args: []
    model: ""
    timeout: 5m
  agents:
    planner: {}
    coder: {}
    reviewer: {}
    tester: {}
    evaluator: {}
`

func loadConfig() (*config.PilotConfig, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "path to pilot config file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
