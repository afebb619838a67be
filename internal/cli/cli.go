// Package cli implements the dbharness command-line interface: creating,
// destroying, and inspecting the test databases outside of a test run, which
// is how the reuse workflow is managed.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/phrazzld/dbharness/internal/config"

	// Registered engines selectable via configuration.
	_ "github.com/phrazzld/dbharness/engine/postgres"
	_ "github.com/phrazzld/dbharness/engine/sqlite"
)

var (
	flagConfig  string
	flagReuseDB bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a dbharness config file")
	rootCmd.PersistentFlags().BoolVar(&flagReuseDB, "reuse-db", false,
		"Reuse previously created databases: skip creation when they exist and never drop them")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(statusCmd)
}

var rootCmd = &cobra.Command{
	Use:   "dbharness",
	Short: "Manage test databases for dbharness-based test suites",
	Long: `dbharness manages the physical test databases used by test suites built on
the dbharness library.

A test run normally creates its databases itself and drops them at the end.
With --reuse-db (or reuse_db in the config), databases are created once with
deterministic names, kept across runs, and this CLI is how they are set up
and torn down out of band.

Examples:
  dbharness create --config dbharness.yaml --reuse-db
  dbharness status --config dbharness.yaml
  dbharness destroy --config dbharness.yaml`,
	SilenceUsage: true,
}

// Execute runs the CLI. Errors have already been printed by cobra.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies CLI flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("reuse-db") || rootCmd.PersistentFlags().Changed("reuse-db") {
		cfg.ReuseDB = flagReuseDB
	}
	return cfg, nil
}
