// Package logging provides the leveled console logger used by the
// reconciliation run, with an optional mirror into a per-run report file.
//
// Verbosity levels:
//
//	0 - errors only
//	1 - errors plus a transient single-line progress display
//	2 - errors, info
//	3 - errors, info, debug
//
// The progress display rewrites a single terminal line with \r; Finish
// terminates it with a newline. Error output always terminates a pending
// progress line first so it is never overwritten.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	errTag     = color.New(color.FgRed).Sprint("[ERROR]")
	infoTag    = color.New(color.FgYellow).Sprint("[INFO]")
	debugTag   = color.New(color.FgBlue).Sprint("[DEBUG]")
	successTag = color.New(color.FgGreen).Sprint("[SUCCESS]")
	processTag = color.New(color.FgCyan).Sprint("[PROCESS]")
)

// Logger writes leveled messages to a console writer and, when a report
// writer is attached, mirrors every message (regardless of verbosity)
// into it without ANSI colors.
type Logger struct {
	mu        sync.Mutex
	verbosity int
	out       io.Writer
	report    io.Writer
	inProcess bool
}

// New returns a logger writing to out with the given verbosity.
func New(verbosity int, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{verbosity: verbosity, out: out}
}

// SetReport attaches a report writer mirroring all messages. Pass nil to
// detach.
func (l *Logger) SetReport(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.report = w
}

// Verbosity returns the configured verbosity level.
func (l *Logger) Verbosity() int {
	return l.verbosity
}

func (l *Logger) emit(tag, plainTag string, minLevel int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.verbosity >= minLevel && !l.inProcess {
		fmt.Fprintf(l.out, "%s %s\n", tag, msg)
	}
	if l.report != nil {
		fmt.Fprintf(l.report, "%s %s\n", plainTag, msg)
	}
}

// Error logs an error message. Errors are always shown and interrupt a
// pending progress line.
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProcess {
		fmt.Fprintln(l.out)
		l.inProcess = false
	}
	fmt.Fprintf(l.out, "%s %s\n", errTag, msg)
	if l.report != nil {
		fmt.Fprintf(l.report, "[ERROR] %s\n", msg)
	}
}

// Info logs an informational message (verbosity >= 2).
func (l *Logger) Info(format string, args ...any) {
	l.emit(infoTag, "[INFO]", 2, format, args...)
}

// Debug logs a debug message (verbosity >= 3).
func (l *Logger) Debug(format string, args ...any) {
	l.emit(debugTag, "[DEBUG]", 3, format, args...)
}

// Success logs a success message (verbosity >= 2).
func (l *Logger) Success(format string, args ...any) {
	l.emit(successTag, "[SUCCESS]", 2, format, args...)
}

// Process rewrites the transient progress line (verbosity == 1 only).
// Progress lines are not mirrored into the report file.
func (l *Logger) Process(format string, args ...any) {
	if l.verbosity != 1 {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\r", processTag, msg)
	l.inProcess = true
}

// Finish terminates a pending progress line with a newline.
func (l *Logger) Finish() {
	if l.verbosity != 1 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProcess {
		fmt.Fprintln(l.out)
		l.inProcess = false
	}
}
