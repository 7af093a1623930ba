package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a pilot configuration from the given YAML file path.
// After parsing, it applies defaults to agents that don't specify their own
// values.
func Load(path string) (*PilotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg PilotConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a pilot config in standard locations and loads the
// first one found. Search order: ./pilot.yaml, ~/.pilot/config.yaml
func LoadDefault() (*PilotConfig, error) {
	candidates := []string{"pilot.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".pilot", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no pilot config found (searched: %v)", candidates)
}

// applyDefaults merges defaults into agents that don't set their own values
// and fills workspace settings.
func applyDefaults(cfg *PilotConfig) {
	p := &cfg.Pilot

	if p.WorkspaceDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			p.WorkspaceDir = filepath.Join(home, ".pilot", "workspaces")
		}
	}
	if p.WorkspaceKind == "" {
		p.WorkspaceKind = "production"
	}

	for name, a := range p.Agents {
		if a.Command == "" {
			a.Command = p.Defaults.Command
		}
		if len(a.Args) == 0 {
			a.Args = p.Defaults.Args
		}
		if a.Model == "" {
			a.Model = p.Defaults.Model
		}
		if a.Timeout == "" {
			a.Timeout = p.Defaults.Timeout
		}
		p.Agents[name] = a
	}
}
