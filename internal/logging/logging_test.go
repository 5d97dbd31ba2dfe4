package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbosityGating(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		log       func(l *Logger)
		want      []string
		wantNot   []string
	}{
		{
			name:      "errors always shown",
			verbosity: 0,
			log:       func(l *Logger) { l.Error("boom") },
			want:      []string{"boom"},
		},
		{
			name:      "info hidden below verbosity 2",
			verbosity: 1,
			log:       func(l *Logger) { l.Info("hello") },
			wantNot:   []string{"hello"},
		},
		{
			name:      "info shown at verbosity 2",
			verbosity: 2,
			log:       func(l *Logger) { l.Info("hello") },
			want:      []string{"hello"},
		},
		{
			name:      "debug hidden at verbosity 2",
			verbosity: 2,
			log:       func(l *Logger) { l.Debug("details") },
			wantNot:   []string{"details"},
		},
		{
			name:      "debug shown at verbosity 3",
			verbosity: 3,
			log:       func(l *Logger) { l.Debug("details") },
			want:      []string{"details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			tt.log(New(tt.verbosity, &buf))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.wantNot {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestErrorTerminatesProgressLine(t *testing.T) {
	var buf strings.Builder
	l := New(1, &buf)

	l.Process("checking 5/100")
	l.Error("something failed")

	out := buf.String()
	assert.Contains(t, out, "checking 5/100\r")
	// The progress line must be closed with a newline before the error.
	assert.Contains(t, out, "\r\n")
	assert.Contains(t, out, "something failed")
}

func TestReportMirrorIgnoresVerbosity(t *testing.T) {
	var out, report strings.Builder
	l := New(0, &out)
	l.SetReport(&report)

	l.Info("quiet on console")
	l.Debug("also quiet")

	assert.NotContains(t, out.String(), "quiet on console")
	assert.Contains(t, report.String(), "[INFO] quiet on console")
	assert.Contains(t, report.String(), "[DEBUG] also quiet")
}

func TestProcessNoopOutsideVerbosityOne(t *testing.T) {
	var buf strings.Builder
	l := New(2, &buf)
	l.Process("never shown")
	l.Finish()
	assert.Empty(t, buf.String())
}
