// Package timeline derives the ground-truth phase intervals from the
// execution log. It is the single authoritative reference for labeling:
// collectors and the labeling engine never ask the scheduler for state.
package timeline

import (
	"fmt"
	"time"

	"TraceForge/internal/model"
	"TraceForge/internal/runlog"
)

// Interval is one closed phase interval [Start, End] with its label.
type Interval struct {
	PhaseID int
	Label   model.Label
	Start   time.Time
	End     time.Time
	// Faulted is set when the phase carried a fault marker or its end had
	// to be inferred from the next phase's start.
	Faulted bool
}

// Contains reports whether ts falls inside the closed interval.
func (iv Interval) Contains(ts time.Time) bool {
	return !ts.Before(iv.Start) && !ts.After(iv.End)
}

// Timeline is the ordered, non-overlapping interval sequence for one run.
// It is immutable after construction and safe for concurrent readers.
type Timeline struct {
	intervals     []Interval
	faults        []string
	adapterFaults int
}

// FromEntries builds a timeline from parsed execution log entries. Log
// corruption (unmatched events, out-of-order timestamps) fails closed: the
// affected span is dropped, becoming gap, and a fault note is recorded.
// preFaults carries parse-level fault notes from the log reader.
func FromEntries(entries []runlog.Entry, preFaults []string) (*Timeline, error) {
	t := &Timeline{faults: append([]string(nil), preFaults...)}

	var open *Interval
	var last time.Time
	for _, e := range entries {
		if !last.IsZero() && e.Timestamp.Before(last) {
			t.faultf("out-of-order timestamp %s for %s of phase %d; entry ignored",
				e.Timestamp.Format(time.RFC3339Nano), e.Event, e.PhaseID)
			if open != nil {
				t.faultf("phase %d dropped due to log corruption", open.PhaseID)
				open = nil
			}
			continue
		}
		last = e.Timestamp

		switch e.Event {
		case runlog.EventPhaseStart:
			if open != nil {
				// Missing phase_end: close the open phase at this start.
				open.End = e.Timestamp
				open.Faulted = true
				t.faultf("phase %d missing phase_end; closed at phase %d start", open.PhaseID, e.PhaseID)
				t.push(*open)
			}
			open = &Interval{PhaseID: e.PhaseID, Label: e.Label, Start: e.Timestamp}
		case runlog.EventPhaseEnd:
			if open == nil {
				t.faultf("unmatched phase_end for phase %d; ignored", e.PhaseID)
				continue
			}
			if open.PhaseID != e.PhaseID {
				t.faultf("phase_end for phase %d while phase %d open; both dropped", e.PhaseID, open.PhaseID)
				open = nil
				continue
			}
			open.End = e.Timestamp
			t.push(*open)
			open = nil
		case runlog.EventPhaseFault:
			t.adapterFaults++
			if open != nil && open.PhaseID == e.PhaseID {
				open.Faulted = true
			}
		}
	}
	if open != nil {
		// Final phase never ended and there is no later boundary to close
		// it at; its span is unusable for labeling.
		t.faultf("phase %d missing phase_end at end of log; dropped", open.PhaseID)
	}

	if len(t.intervals) == 0 {
		return nil, fmt.Errorf("execution log yields no usable phase interval")
	}
	return t, nil
}

// push appends an interval, enforcing ordering against the previous one.
func (t *Timeline) push(iv Interval) {
	if iv.End.Before(iv.Start) {
		t.faultf("phase %d interval ends before it starts; dropped", iv.PhaseID)
		return
	}
	if n := len(t.intervals); n > 0 && iv.Start.Before(t.intervals[n-1].End) {
		t.faultf("phase %d overlaps phase %d; dropped", iv.PhaseID, t.intervals[n-1].PhaseID)
		return
	}
	t.intervals = append(t.intervals, iv)
}

func (t *Timeline) faultf(format string, args ...interface{}) {
	t.faults = append(t.faults, fmt.Sprintf(format, args...))
}

// Intervals returns the ordered phase intervals.
func (t *Timeline) Intervals() []Interval {
	return t.intervals
}

// Faults returns the fault notes collected while parsing the log.
func (t *Timeline) Faults() []string {
	return t.faults
}

// AdapterFaults returns the number of phase_fault markers seen.
func (t *Timeline) AdapterFaults() int {
	return t.adapterFaults
}

// LabelFor resolves a timestamp against the timeline. Timestamps strictly
// between two intervals report gap rather than being folded into a
// neighbor; timestamps outside the run report out_of_range.
func (t *Timeline) LabelFor(ts time.Time) (model.Label, model.Confidence) {
	if ts.Before(t.intervals[0].Start) || ts.After(t.intervals[len(t.intervals)-1].End) {
		return model.LabelUnknown, model.ConfidenceOutOfRange
	}
	for _, iv := range t.intervals {
		if iv.Contains(ts) {
			return iv.Label, model.ConfidenceExact
		}
		if ts.Before(iv.Start) {
			break
		}
	}
	return model.LabelUnknown, model.ConfidenceGap
}

// Neighbors returns the intervals immediately before and after a gap
// timestamp. For a timestamp inside an interval both returns point at it.
func (t *Timeline) Neighbors(ts time.Time) (prev, next *Interval) {
	for i := range t.intervals {
		iv := &t.intervals[i]
		if iv.Contains(ts) {
			return iv, iv
		}
		if ts.After(iv.End) {
			prev = iv
			continue
		}
		if ts.Before(iv.Start) {
			next = iv
			break
		}
	}
	return prev, next
}
