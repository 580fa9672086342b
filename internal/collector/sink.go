package collector

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSVSink appends telemetry rows to a CSV file. It is written by exactly
// one collector goroutine; no locking is needed by construction.
type CSVSink struct {
	f     *os.File
	w     *csv.Writer
	count int
}

// NewCSVSink creates the file at path and writes the header row.
func NewCSVSink(path string, header []string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink file '%s': %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write sink header: %w", err)
	}
	return &CSVSink{f: f, w: w}, nil
}

// Append writes one record row.
func (s *CSVSink) Append(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	s.count++
	return nil
}

// Count returns the number of rows appended so far.
func (s *CSVSink) Count() int {
	return s.count
}

// Close flushes buffered rows and closes the file, returning the row count.
func (s *CSVSink) Close() (int, error) {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return s.count, fmt.Errorf("failed to flush sink: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return s.count, fmt.Errorf("failed to sync sink: %w", err)
	}
	return s.count, s.f.Close()
}
