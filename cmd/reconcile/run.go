package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/counselops/reconcile/internal/check"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/repair"
	"github.com/counselops/reconcile/internal/report"
	"github.com/counselops/reconcile/internal/runner"
)

var (
	repairFlag  bool
	limitFlag   int
	skipFlag    int
	timeoutFlag time.Duration
	checksFlag  []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured consistency checks",
	Long: `Run the consistency checks in order. Each check scans its full record
set and reports every inconsistency it finds; failing checks are written
to a CSV result file and sent to the configured webhook and audit index.

With --repair the chat-to-identity check deletes orphaned chat accounts
and their private rooms. Deletions are gated: a room shared with a live
user, referenced from the service database, or owned by a user the
identity provider knows again is left alone.

Exit codes:
  0 - All checks passed
  1 - A check could not complete
  2 - At least one check found inconsistencies
  3 - Repair left the technical account stuck in a room (manual cleanup)`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runChecks())
	},
}

func init() {
	runCmd.Flags().BoolVarP(&repairFlag, "repair", "f", false, "delete orphaned chat accounts and their rooms")
	runCmd.Flags().IntVarP(&limitFlag, "limit", "l", 0, "cap the number of scanned records (0 = all)")
	runCmd.Flags().IntVarP(&skipFlag, "skip", "s", 0, "skip the first records of the scanned set")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "abort the run after this duration (0 = no limit)")
	runCmd.Flags().StringSliceVar(&checksFlag, "checks", nil, "checks to run (default: configured or all)")
	rootCmd.AddCommand(runCmd)
}

func runChecks() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := logging.New(cfg.Verbosity, os.Stdout)
	reportFile, err := report.OpenReportFile(cfg.LogDir, time.Now())
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer reportFile.Close()
	log.SetReport(reportFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	svcs, err := bootstrap(ctx, cfg, log, repairFlag)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer svcs.Close(ctx)

	names := checksFlag
	if len(names) == 0 {
		names = cfg.Checks
	}

	r := &runner.Runner{
		Registry: runner.Default(),
		Deps:     svcs.deps,
		Sink:     svcs.sink,
		Log:      log,
	}
	opts := check.Options{Repair: repairFlag, Limit: limitFlag, Skip: skipFlag}

	clean, err := r.Run(ctx, names, opts)
	if err != nil {
		log.Error("%v", err)
		var fatal *repair.FatalError
		if errors.As(err, &fatal) {
			log.Error("Remove the technical account from room %s by hand before the next repair run", fatal.RoomID)
			return 3
		}
		return 1
	}
	if !clean {
		return 2
	}
	log.Success("All checks passed")
	return 0
}
