// Package labeling assigns the initial label to every telemetry record
// using only the ground-truth timeline, then hands the unknown remainder to
// reconciliation.
package labeling

import (
	"fmt"

	"TraceForge/internal/model"
	"TraceForge/internal/timeline"
)

// Counts summarizes one format's labeling outcomes.
type Counts struct {
	Total            int `json:"total"`
	IntervalMatch    int `json:"interval_match"`
	Reconciled       int `json:"reconciled"`
	PreservedUnknown int `json:"preserved_unknown"`
	OutOfRange       int `json:"out_of_range"`
	Malformed        int `json:"malformed"`
}

// Engine performs the interval-match labeling pass. It holds only the
// read-only timeline, so one engine serves all formats concurrently.
type Engine struct {
	tl *timeline.Timeline
}

// NewEngine creates a labeling engine over a parsed timeline.
func NewEngine(tl *timeline.Timeline) *Engine {
	return &Engine{tl: tl}
}

// Label assigns exactly one LabelAssignment per record, in input order.
// The pass is deterministic: no randomness and no state survives between
// calls, so repeated runs on the same inputs produce identical output.
func (e *Engine) Label(format model.FormatKind, records []model.Record) []model.LabelAssignment {
	assignments := make([]model.LabelAssignment, 0, len(records))
	for _, rec := range records {
		a := model.LabelAssignment{RecordID: rec.ID(), Format: format}
		if err := rec.Validate(); err != nil {
			a.Label = model.LabelMalformed
			a.Source = model.SourceExcludedMalformed
			assignments = append(assignments, a)
			continue
		}
		label, conf := e.tl.LabelFor(rec.Timestamp())
		a.Confidence = conf
		if conf == model.ConfidenceExact {
			a.Label = label
			a.Source = model.SourceIntervalMatch
		} else {
			a.Label = model.LabelUnknown
			a.Source = model.SourcePreservedUnknown
		}
		assignments = append(assignments, a)
	}
	return assignments
}

// CheckCoverage verifies that every phase interval saw at least one record
// of every format. Absence is a data-quality warning, never a label change.
// Intervals whose phase faulted are exempt: a failed attack script may
// legitimately produce zero traffic.
func (e *Engine) CheckCoverage(sets map[model.FormatKind][]model.Record) []string {
	var warnings []string
	for _, iv := range e.tl.Intervals() {
		if iv.Faulted {
			continue
		}
		for _, format := range model.Formats {
			records, ok := sets[format]
			if !ok {
				continue
			}
			found := false
			for _, rec := range records {
				if rec.Validate() == nil && iv.Contains(rec.Timestamp()) {
					found = true
					break
				}
			}
			if !found {
				warnings = append(warnings, fmt.Sprintf(
					"phase %d (%s): no %s record inside interval", iv.PhaseID, iv.Label, format))
			}
		}
	}
	return warnings
}

// Tally computes outcome counts from a final assignment set.
func Tally(assignments []model.LabelAssignment) Counts {
	c := Counts{Total: len(assignments)}
	for _, a := range assignments {
		switch a.Source {
		case model.SourceIntervalMatch:
			c.IntervalMatch++
		case model.SourceReconciled:
			c.Reconciled++
		case model.SourceExcludedMalformed:
			c.Malformed++
		case model.SourcePreservedUnknown:
			if a.Confidence == model.ConfidenceOutOfRange {
				c.OutOfRange++
			} else {
				c.PreservedUnknown++
			}
		}
	}
	return c
}
