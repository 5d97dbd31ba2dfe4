// Command reconcile cross-checks users and sessions across the
// counseling platform's identity provider, service database and chat
// service, reports inconsistencies and optionally repairs orphaned chat
// accounts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/counselops/reconcile/internal/config"
)

var (
	cfgFile   string
	verbosity int
)

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Consistency checks across identity provider, service database and chat service",
	Long: `reconcile cross-checks the user and session records of the counseling
platform: the identity provider, the relational service database and the
chat service's document database must agree on who exists.

Use "reconcile run" to execute the checks and "reconcile doctor" to
verify connectivity to all four backing services.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", -1, "console log level 0-3 (overrides the environment)")
}

// loadConfig loads the configuration and applies the command-line
// overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if verbosity >= 0 {
		cfg.Verbosity = verbosity
	}
	return cfg, nil
}
