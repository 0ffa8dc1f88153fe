package profiler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// OutputManager appends perf records to a CSV file.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	w                 io.Writer
	closer            io.Closer
	perfHeaderWritten bool
}

// NewOutputManager creates the CSV file at path, creating its directory.
// Returns nil if path is empty (output disabled).
func NewOutputManager(path string) (*OutputManager, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &OutputManager{w: f, closer: f}, nil
}

// NewWriterOutputManager writes CSV records to w. The caller owns w.
func NewWriterOutputManager(w io.Writer) *OutputManager {
	return &OutputManager{w: w}
}

// WritePerf writes a performance stats record. The header is written with the first record only.
func (om *OutputManager) WritePerf(record PerfStatsCSV) error {
	if om == nil {
		return nil
	}

	records := []PerfStatsCSV{record}
	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.w); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.w); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}
	return nil
}

// Close closes the file opened by NewOutputManager.
func (om *OutputManager) Close() error {
	if om == nil || om.closer == nil {
		return nil
	}
	return om.closer.Close()
}
