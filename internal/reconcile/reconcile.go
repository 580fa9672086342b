package reconcile

import (
	"fmt"
	"time"

	"TraceForge/internal/model"
	"TraceForge/internal/timeline"
)

// Reconciler attempts to resolve unknown labels against the nearest phase's
// signature. It holds only read-only state and is safe for concurrent use
// across record formats.
type Reconciler struct {
	tl       *timeline.Timeline
	params   map[model.Label]Params
	maxDrift time.Duration
}

// New creates a Reconciler. Every label that appears in the timeline must
// have signature parameters configured.
func New(tl *timeline.Timeline, params map[model.Label]Params, maxDrift time.Duration) (*Reconciler, error) {
	for _, iv := range tl.Intervals() {
		if _, ok := SignatureFor(iv.Label); !ok {
			return nil, fmt.Errorf("no signature predicate for label %q", iv.Label)
		}
		if _, ok := params[iv.Label]; !ok {
			return nil, fmt.Errorf("no signature parameters for label %q", iv.Label)
		}
	}
	return &Reconciler{tl: tl, params: params, maxDrift: maxDrift}, nil
}

// Reconcile processes one format's records and their initial assignments.
// It returns an updated copy of the assignments and one decision entry per
// record that entered reconciliation.
//
// Only assignments that are unknown with gap confidence enter: the
// candidate subset is computed first and everything else is never iterated,
// so an interval_match label cannot be revisited by construction.
// Out-of-range records have no nearest interval within run bounds and are
// excluded entirely; malformed records were already excluded upstream.
func (r *Reconciler) Reconcile(records []model.Record, assignments []model.LabelAssignment) ([]model.LabelAssignment, []model.ReconciliationDecision) {
	byID := make(map[string]model.Record, len(records))
	for _, rec := range records {
		byID[rec.ID()] = rec
	}

	var candidates []int
	for i, a := range assignments {
		if a.Label == model.LabelUnknown && a.Confidence == model.ConfidenceGap {
			candidates = append(candidates, i)
		}
	}

	out := make([]model.LabelAssignment, len(assignments))
	copy(out, assignments)

	decisions := make([]model.ReconciliationDecision, 0, len(candidates))
	for _, i := range candidates {
		rec, ok := byID[out[i].RecordID]
		if !ok {
			continue
		}
		d := r.decide(rec, out[i].Format)
		if d.Relabeled() {
			out[i].Label = d.NewLabel
			out[i].Source = model.SourceReconciled
		}
		decisions = append(decisions, d)
	}
	return out, decisions
}

// decide evaluates one gap record against the label of the temporally
// nearest interval, ties broken toward the earlier interval.
func (r *Reconciler) decide(rec model.Record, format model.FormatKind) model.ReconciliationDecision {
	d := model.ReconciliationDecision{
		RecordID:      rec.ID(),
		Format:        format,
		PreviousLabel: model.LabelUnknown,
		NewLabel:      model.LabelUnknown,
		DecidedAt:     time.Now().UTC(),
	}

	ts := rec.Timestamp()
	prev, next := r.tl.Neighbors(ts)

	var candidate model.Label
	var offset time.Duration
	switch {
	case prev != nil && next != nil:
		before := ts.Sub(prev.End)
		after := next.Start.Sub(ts)
		if before <= after {
			candidate, offset = prev.Label, before
		} else {
			candidate, offset = next.Label, after
		}
	case prev != nil:
		candidate, offset = prev.Label, ts.Sub(prev.End)
	case next != nil:
		candidate, offset = next.Label, next.Start.Sub(ts)
	default:
		// Cannot happen for gap confidence; keep the record unknown.
		return d
	}
	d.BoundaryOffset = offset

	if offset > r.maxDrift {
		d.ChecksFailed = append(d.ChecksFailed, CheckWithinDriftBound)
		return d
	}
	d.ChecksPassed = append(d.ChecksPassed, CheckWithinDriftBound)

	sig, ok := SignatureFor(candidate)
	if !ok {
		d.ChecksFailed = append(d.ChecksFailed, "no_signature_for_label")
		return d
	}
	passed, failed := sig(rec, r.params[candidate])
	d.ChecksPassed = append(d.ChecksPassed, passed...)
	d.ChecksFailed = append(d.ChecksFailed, failed...)
	if len(failed) == 0 {
		d.NewLabel = candidate
	}
	return d
}
