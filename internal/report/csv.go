package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/counselops/reconcile/internal/check"
)

// CSV writes one semicolon-separated result file per failed check into
// a log directory. Files are named result_<CheckName>_<timestamp>.csv.
type CSV struct {
	Dir string

	// Now pins the filename timestamp in tests; defaults to time.Now.
	Now func() time.Time
}

// Notify implements Sink; the CSV sink does not notify.
func (c *CSV) Notify(ctx context.Context, s Summary) error { return nil }

// Index implements Sink; the CSV sink does not index.
func (c *CSV) Index(ctx context.Context, s Summary, results []check.Result) error { return nil }

// OpenResultFile implements Sink.
func (c *CSV) OpenResultFile(checkName string) (RowWriter, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	name := filepath.Join(c.Dir, fmt.Sprintf("result_%s_%s.csv", checkName, now().Format(TimestampFormat)))
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("creating result file: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	return &csvRowWriter{file: f, w: w}, nil
}

type csvRowWriter struct {
	file *os.File
	w    *csv.Writer
}

func (c *csvRowWriter) Write(row []string) error {
	return c.w.Write(row)
}

func (c *csvRowWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
