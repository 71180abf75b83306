package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"house-finder/models"
)

// CSVWriter writes the sorted results of one run to
// <dir>/results_<timestamp>_<runID>.csv. It never overwrites a file.
type CSVWriter struct {
	mu    sync.Mutex
	dir   string
	runID string
	now   func() time.Time
	path  string
}

// NewCSVWriter creates a writer for the given output directory and run.
func NewCSVWriter(dir, runID string) *CSVWriter {
	return &CSVWriter{dir: dir, runID: runID, now: time.Now}
}

// Path returns the file written by the last WriteResults call.
func (c *CSVWriter) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Header returns the title row.
func Header() []string {
	row := make([]string, 0, len(models.ResultFields))
	for _, f := range models.ResultFields {
		row = append(row, f.Heading())
	}
	return row
}

// Row returns the CSV cells for one result. Offers are joined with
// newlines inside the last cell.
func Row(r *models.EnrichedResult) []string {
	row := r.Values()
	var internet strings.Builder
	for _, line := range r.OfferLines() {
		internet.WriteString("\n")
		internet.WriteString(line)
	}
	return append(row, internet.String())
}

// WriteResults writes a new CSV file holding results in the given order.
func (c *CSVWriter) WriteResults(results []*models.EnrichedResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	name := fmt.Sprintf("results_%s_%s.csv", c.now().Format("20060102_150405"), c.runID)
	path := filepath.Join(c.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(Row(r)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}

	c.path = path
	return nil
}
