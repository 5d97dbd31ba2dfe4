// Package report delivers check findings to the configured sinks: CSV
// result files, a Teams-style webhook card and a bulk audit index.
// Delivery failures are surfaced as errors and left to the caller to
// log; a broken sink never aborts a run.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/counselops/reconcile/internal/check"
)

// TimestampFormat is the filename timestamp layout of report and result
// files.
const TimestampFormat = "2006-01-02_15-04-05"

// Summary describes one finished check for the sinks.
type Summary struct {
	Check       string
	Headline    string
	Passed      bool
	Started     time.Time
	Finished    time.Time
	Correlation string

	// Messages are the individual finding messages; sinks truncate as
	// they see fit.
	Messages []string
}

// RowWriter receives the CSV rows of one check.
type RowWriter interface {
	Write(row []string) error
	Close() error
}

// Sink is one delivery target. Sinks that do not handle a concern
// return nil from it.
type Sink interface {
	// Notify sends the one-line summary of a failed check.
	Notify(ctx context.Context, s Summary) error

	// Index stores the individual findings for later analysis.
	Index(ctx context.Context, s Summary, results []check.Result) error

	// OpenResultFile opens the per-check result file, or returns a nil
	// writer when the sink does not write files.
	OpenResultFile(checkName string) (RowWriter, error)
}

// Multi fans out to several sinks. Every sink is attempted; errors are
// joined.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Index implements Sink.
func (m Multi) Index(ctx context.Context, s Summary, results []check.Result) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Index(ctx, s, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenResultFile implements Sink, combining the writers of all sinks
// that produce one.
func (m Multi) OpenResultFile(checkName string) (RowWriter, error) {
	var writers []RowWriter
	for _, sink := range m {
		w, err := sink.OpenResultFile(checkName)
		if err != nil {
			for _, open := range writers {
				open.Close()
			}
			return nil, err
		}
		if w != nil {
			writers = append(writers, w)
		}
	}
	if len(writers) == 0 {
		return nil, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return multiRowWriter(writers), nil
}

type multiRowWriter []RowWriter

func (m multiRowWriter) Write(row []string) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiRowWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenReportFile creates the per-run report log file in dir, named
// report_<timestamp>.log, and returns it for logging.Logger.SetReport.
func OpenReportFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("report_%s.log", now.Format(TimestampFormat)))
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}
	return f, nil
}
