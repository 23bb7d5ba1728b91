package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/cmd/config"
	appconfig "github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/errors"
)

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Plan and coordinate parallel work across agents",
	Long: `Fanout decides whether a set of tasks is worth splitting across
concurrent agents, plans dependency-ordered batches, runs them, and reports
conflicts between what the agents changed.

Plan files are YAML or JSON: either a list of tasks or a mapping with
"description", "context" and "tasks" keys.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints err to w. Errors fanout raised for the user are
// printed as they are; anything else (flag parsing, I/O) gets a usage hint.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	if !errors.IsUserFacing(err) {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", rootCmd.Name())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/fanout/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	config.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FANOUT")
	// FANOUT_COORDINATOR_MAX_AGENTS overrides coordinator.max_agents
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// bindFlags binds command flags to config keys when the command runs, so
// commands sharing a key do not steal each other's binding.
func bindFlags(bindings map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for flag, key := range bindings {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	}
}
