package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Server.AdminAddr = ":9090"
	example.Server.IndexFile = "./views/index.md"
	example.Build = BuildConfig{
		Command: "node",
		Args:    []string{"./assembler/cli.js"},
		Timeout: 2 * time.Minute,
		Options: map[string]any{"pretty": false},
	}
	example.Compile = CompileConfig{
		Command: "node",
		Args:    []string{"./helper/compile.js"},
		Timeout: 2 * time.Minute,
	}
	example.Metrics.Enabled = true
	example.Events.DBPath = "./tmp/events.db"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
