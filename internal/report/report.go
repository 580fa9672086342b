// Package report assembles the per-run data-quality summary. The report is
// how a researcher decides whether a generated dataset is usable before
// training on it, so every fault category is enumerated explicitly.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"TraceForge/internal/labeling"
	"TraceForge/internal/model"
)

// Report is the run summary written next to the labeled tables.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Formats map[model.FormatKind]labeling.Counts `json:"formats"`

	// AdapterFaults counts phases whose traffic tool failed.
	AdapterFaults int `json:"adapter_faults"`
	// LogFaults are the execution-log corruption and parse notes.
	LogFaults []string `json:"log_faults"`
	// CoverageWarnings flag phase intervals with no record of a format.
	CoverageWarnings []string `json:"coverage_warnings"`
	// Decisions is the total number of reconciliation decisions recorded.
	Decisions int `json:"decisions"`
}

// Build assembles a report from the pipeline outputs.
func Build(runID string, results map[model.FormatKind]*labeling.FormatResult, adapterFaults int, logFaults, coverageWarnings []string) *Report {
	r := &Report{
		RunID:            runID,
		GeneratedAt:      time.Now().UTC(),
		Formats:          make(map[model.FormatKind]labeling.Counts, len(results)),
		AdapterFaults:    adapterFaults,
		LogFaults:        logFaults,
		CoverageWarnings: coverageWarnings,
	}
	for format, res := range results {
		r.Formats[format] = res.Counts
		r.Decisions += len(res.Decisions)
	}
	return r
}

// Write stores the report as indented JSON at path.
func (r *Report) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// JSON returns the report as a JSON string, for the audit store.
func (r *Report) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return string(data), nil
}
