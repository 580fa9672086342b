package labeling

import (
	"net"
	"testing"
	"time"

	"TraceForge/internal/model"
	"TraceForge/internal/reconcile"
)

func testParams() map[model.Label]reconcile.Params {
	victim := net.ParseIP("10.0.0.5")
	return map[model.Label]reconcile.Params{
		model.LabelNormal:   {VictimIP: victim, VictimPort: 80},
		model.LabelSynFlood: {VictimIP: victim, VictimPort: 80},
		model.LabelUDPFlood: {VictimIP: victim, VictimPort: 80},
	}
}

// TestThreePhaseScenario walks the canonical three-phase run: benign, SYN
// flood, UDP flood, with records at the boundaries, inside the phases and
// outside the run.
func TestThreePhaseScenario(t *testing.T) {
	tl := testTimeline(t)
	rec, err := reconcile.New(tl, testParams(), 25*time.Second)
	if err != nil {
		t.Fatalf("Failed to create reconciler: %v", err)
	}
	p := NewPipeline(tl, rec)

	records := []model.Record{
		// Boundary-adjacent benign packet in the first transition gap,
		// nearest the normal phase, not victim-directed.
		packet("pkt-000000", 9.9, "10.0.0.9", 443, model.ProtoTCP),
		// Mid-phase SYN flood packet.
		packet("pkt-000001", 15, "10.0.0.5", 80, model.ProtoTCP),
		// Gap packet nearest the syn_flood phase but aimed at the wrong
		// destination: fails the signature, stays unknown.
		packet("pkt-000002", 19.98, "10.0.0.7", 80, model.ProtoTCP),
		// Mid-phase UDP flood packet.
		packet("pkt-000003", 22, "10.0.0.5", 80, model.ProtoUDP),
		// After the run: out of range, excluded from reconciliation.
		packet("pkt-000004", 31, "10.0.0.5", 80, model.ProtoUDP),
	}

	results := p.Process(map[model.FormatKind][]model.Record{model.FormatPacket: records})
	r := results[model.FormatPacket]
	if r == nil {
		t.Fatal("No result for packet format")
	}

	a := r.Assignments
	if a[0].Label != model.LabelNormal || a[0].Source != model.SourceReconciled {
		t.Errorf("t=9.9: got (%s,%s), want reconciled normal", a[0].Label, a[0].Source)
	}
	if a[1].Label != model.LabelSynFlood || a[1].Source != model.SourceIntervalMatch {
		t.Errorf("t=15: got (%s,%s), want interval_match syn_flood", a[1].Label, a[1].Source)
	}
	if a[2].Label != model.LabelUnknown || a[2].Source != model.SourcePreservedUnknown {
		t.Errorf("t=19.98: got (%s,%s), want preserved unknown", a[2].Label, a[2].Source)
	}
	if a[3].Label != model.LabelUDPFlood || a[3].Source != model.SourceIntervalMatch {
		t.Errorf("t=22: got (%s,%s), want interval_match udp_flood", a[3].Label, a[3].Source)
	}
	if a[4].Label != model.LabelUnknown || a[4].Confidence != model.ConfidenceOutOfRange {
		t.Errorf("t=31: got (%s,%s), want out_of_range unknown", a[4].Label, a[4].Confidence)
	}

	// Only the two gap records entered reconciliation; the out-of-range
	// record must not appear in the decision trail.
	if len(r.Decisions) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(r.Decisions))
	}
	for _, d := range r.Decisions {
		if d.RecordID == "pkt-000004" {
			t.Error("Out-of-range record must be excluded from reconciliation")
		}
	}

	c := r.Counts
	if c.IntervalMatch != 2 || c.Reconciled != 1 || c.PreservedUnknown != 1 || c.OutOfRange != 1 {
		t.Errorf("Counts = %+v", c)
	}
}

// TestPipelineIsDeterministic runs the full two-pass pipeline twice and
// requires identical assignment sets.
func TestPipelineIsDeterministic(t *testing.T) {
	tl := testTimeline(t)
	rec, err := reconcile.New(tl, testParams(), 25*time.Second)
	if err != nil {
		t.Fatalf("Failed to create reconciler: %v", err)
	}
	p := NewPipeline(tl, rec)

	records := []model.Record{
		packet("pkt-000000", 9.9, "10.0.0.9", 443, model.ProtoTCP),
		packet("pkt-000001", 10.1, "10.0.0.5", 80, model.ProtoTCP),
		packet("pkt-000002", 20, "10.0.0.5", 80, model.ProtoUDP),
	}
	sets := map[model.FormatKind][]model.Record{model.FormatPacket: records}

	first := p.Process(sets)[model.FormatPacket].Assignments
	second := p.Process(sets)[model.FormatPacket].Assignments
	if len(first) != len(second) {
		t.Fatalf("Assignment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Assignment %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
