// Package config provides CLI commands for managing fanout configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/fanout/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create fanout configuration",
	Long: `View or create fanout configuration.

Use 'config show' to display the effective configuration, 'config init' to
create a commented config file and 'config validate' to check it.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/fanout/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := appconfig.Load(); err != nil {
		return fmt.Errorf("configuration is invalid:\n%w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}

// defaultConfig is written by 'config init'.
const defaultConfig = `# fanout configuration
# Every key can be overridden with a FANOUT_ environment variable, e.g.
# FANOUT_COORDINATOR_MAX_AGENTS=8

logging:
  # Write JSON logs to {dir}/fanout.log
  enabled: true
  # debug, info, warn or error
  level: info
  # Empty means ~/.local/share/fanout
  dir: ""

graph:
  # Infer dependencies from task descriptions
  detect_implicit: true
  # Lowest inferred confidence that becomes an edge (0-1)
  min_confidence: 0.6

batch:
  # minimize-time, balance-load or minimize-conflicts
  goal: minimize-time
  # Maximum tasks per batch
  max_agents: 4

coordinator:
  # conservative skips batches whose prerequisites failed; aggressive runs everything
  strategy: conservative
  # Maximum concurrent agents per batch
  max_agents: 4
  # Per-task timeout, 0 = none (e.g. 10m)
  task_timeout: 0s
  # Re-executions of a failed task
  max_retries: 0

conflicts:
  # Resources excluded from file-level conflict detection
  ignore_patterns:
    - "**/*.lock"
    - "go.sum"

progress:
  # simple-average, weighted or critical-path
  strategy: simple-average
  # Extrapolation rate when no agent reports remaining time
  minutes_per_percent: 1

executor:
  # simulate or nats
  kind: simulate
  # NATS server for the nats executor. Empty starts an embedded server.
  nats_url: ""
  # Probability that a simulated task succeeds (0-1)
  success_rate: 1
  # Wall-clock time per estimated minute in simulation
  time_scale: 10ms
  seed: 1

history:
  # Record every run in a SQLite database
  enabled: true
  # Empty means ~/.local/share/fanout/history.db
  path: ""

metrics:
  # Serve Prometheus metrics while a command runs, e.g. ":9090"
  addr: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize fanout's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: FANOUT_* (e.g., FANOUT_COORDINATOR_MAX_AGENTS)")
	return nil
}
