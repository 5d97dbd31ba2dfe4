package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/counselops/reconcile/internal/runner"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the registered checks",
	Run: func(cmd *cobra.Command, args []string) {
		// Listing works without a complete configuration; the enabled
		// markers just default to everything then.
		var configured []string
		if cfg, err := loadConfig(); err == nil {
			configured = cfg.Checks
		}

		enabled := make(map[string]bool)
		for _, name := range configured {
			enabled[name] = true
		}
		// An empty configured list means everything runs.
		all := len(configured) == 0

		green := color.New(color.FgGreen).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		for _, name := range runner.Default().Names() {
			if all || enabled[name] {
				fmt.Printf("%s %s\n", green("enabled "), name)
			} else {
				fmt.Printf("%s %s\n", faint("disabled"), name)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(checksCmd)
}
