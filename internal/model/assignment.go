package model

import "time"

// AssignmentSource records how a label was decided.
type AssignmentSource string

const (
	// SourceIntervalMatch: the record's timestamp fell inside a phase
	// interval. Never revisited by reconciliation.
	SourceIntervalMatch AssignmentSource = "interval_match"
	// SourceReconciled: an unknown record was resolved by a signature check
	// against the nearest phase. Always paired with a decision entry.
	SourceReconciled AssignmentSource = "reconciled"
	// SourcePreservedUnknown: the record stayed unknown, either because
	// reconciliation declined it or because it never qualified for it.
	SourcePreservedUnknown AssignmentSource = "preserved_unknown"
	// SourceExcludedMalformed: the record failed format validation and was
	// kept out of labeling and reconciliation.
	SourceExcludedMalformed AssignmentSource = "excluded_malformed"
)

// Confidence qualifies a timeline lookup.
type Confidence string

const (
	ConfidenceExact      Confidence = "exact"
	ConfidenceGap        Confidence = "gap"
	ConfidenceOutOfRange Confidence = "out_of_range"
)

// LabelAssignment is the single label decision for one record. Exactly one
// exists per record after the pipeline runs.
type LabelAssignment struct {
	RecordID   string
	Format     FormatKind
	Label      Label
	Source     AssignmentSource
	Confidence Confidence
}

// ReconciliationDecision is one append-only audit entry. Every record that
// enters reconciliation produces exactly one, whether or not it was
// relabeled.
type ReconciliationDecision struct {
	RecordID      string
	Format        FormatKind
	PreviousLabel Label
	NewLabel      Label
	ChecksPassed  []string
	ChecksFailed  []string
	// BoundaryOffset is the distance from the record's timestamp to the
	// nearest phase boundary.
	BoundaryOffset time.Duration
	DecidedAt      time.Time
}

// Relabeled reports whether the decision changed the record's label.
func (d ReconciliationDecision) Relabeled() bool {
	return d.NewLabel != d.PreviousLabel
}
