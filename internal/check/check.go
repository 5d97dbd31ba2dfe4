// Package check implements the consistency checks run against the
// identity provider, the service database and the chat service. Each
// check scans its record set completely, accumulates every inconsistency
// it finds, and reports success only when the result list stays empty.
package check

import (
	"context"
	"time"

	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/store"
)

// Options are the run parameters shared by all checks.
type Options struct {
	// Repair enables the destructive repair pass where a check supports
	// one.
	Repair bool

	// Limit caps the number of records scanned; zero means no cap.
	Limit int

	// Skip skips the first records of the scanned set.
	Skip int
}

// Check is one consistency check. Run never short-circuits on the first
// finding: downstream reporting needs the complete result list, so a
// failed check means the scan finished and found at least one
// inconsistency. A returned error means the scan itself broke off.
type Check interface {
	// Name is the stable identifier used in configuration and reports.
	Name() string

	// Run executes the check and reports true when no inconsistency was
	// found.
	Run(ctx context.Context, opts Options) (bool, error)

	// Summary is a one-line description of the findings for
	// notifications.
	Summary() string

	// Header returns the CSV report column names.
	Header() []string

	// Row renders one result as a CSV report row.
	Row(r Result) []string

	// Results returns a snapshot of the accumulated findings.
	Results() []Result
}

// Repairer removes orphaned chat accounts for the results a check
// classified as not found. It is implemented by the repair engine;
// successfully repaired entries are removed from the list.
type Repairer interface {
	Repair(ctx context.Context, results *ResultList) error
}

// ScanSettings tune the paged scans.
type ScanSettings struct {
	ChunkSize        int
	Parallelism      int
	IndexPageSize    int
	IndexParallelism int
}

// DefaultScanSettings mirror the page sizes the backing services have
// always been scanned with.
func DefaultScanSettings() ScanSettings {
	return ScanSettings{
		ChunkSize:        100,
		Parallelism:      10,
		IndexPageSize:    100,
		IndexParallelism: 6,
	}
}

// Deps carries the collaborators a check may need. The orchestrator
// assembles one Deps value at startup and hands it to every check
// constructor; checks pick what they use.
type Deps struct {
	Identity identity.Provider
	Docs     store.Documents
	Rel      store.Relational
	Repairer Repairer
	Log      *logging.Logger
	Scan     ScanSettings

	// StaleAfter is the age at which an unanswered session counts as
	// stale.
	StaleAfter time.Duration

	// EventThresholds is the per-event-kind minimum volume table.
	EventThresholds EventThresholds

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) scan() ScanSettings {
	s := d.Scan
	def := DefaultScanSettings()
	if s.ChunkSize <= 0 {
		s.ChunkSize = def.ChunkSize
	}
	if s.Parallelism <= 0 {
		s.Parallelism = def.Parallelism
	}
	if s.IndexPageSize <= 0 {
		s.IndexPageSize = def.IndexPageSize
	}
	if s.IndexParallelism <= 0 {
		s.IndexParallelism = def.IndexParallelism
	}
	return s
}

// clampTotal applies skip and limit to a record count: the scan covers
// records [skip, skip+limit) intersected with [0, total).
func clampTotal(total int, opts Options) int {
	if opts.Limit > 0 && opts.Skip+opts.Limit < total {
		return opts.Skip + opts.Limit
	}
	return total
}
