package config

// PilotConfig is the top-level configuration structure parsed from pilot YAML.
type PilotConfig struct {
	Pilot Pilot `yaml:"pilot"`
}

// Pilot defines the run environment: workspace location, disposal policy, and
// the agent command for each stage.
type Pilot struct {
	Name              string           `yaml:"name"`
	SourceRepo        string           `yaml:"source_repo"`
	WorkspaceDir      string           `yaml:"workspace_dir"`
	WorkspaceKind     string           `yaml:"workspace_kind"` // "production" or "test"
	PreserveOnFailure bool             `yaml:"preserve_on_failure"`
	Defaults          AgentDefaults    `yaml:"defaults"`
	Agents            map[string]Agent `yaml:"agents"`
}

// AgentDefaults holds default values applied to agents that don't specify
// their own.
type AgentDefaults struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Model   string   `yaml:"model"`
	Timeout string   `yaml:"timeout"`
}

// Agent defines the external command invoked for one pipeline stage.
type Agent struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Model   string   `yaml:"model"`
	Timeout string   `yaml:"timeout"`
}

// StageNames are the agent keys every config must define.
var StageNames = []string{"planner", "coder", "reviewer", "tester", "evaluator"}
