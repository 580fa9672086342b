package timeline

import (
	"testing"
	"time"

	"TraceForge/internal/model"
	"TraceForge/internal/runlog"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

func entry(sec float64, ev runlog.EventKind, id int, label model.Label) runlog.Entry {
	return runlog.Entry{Timestamp: at(sec), Event: ev, PhaseID: id, Label: label}
}

// threePhaseLog is normal[0,10], syn_flood[12,20], udp_flood[22,30].
func threePhaseLog() []runlog.Entry {
	return []runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelNormal),
		entry(10, runlog.EventPhaseEnd, 0, model.LabelNormal),
		entry(12, runlog.EventPhaseStart, 1, model.LabelSynFlood),
		entry(20, runlog.EventPhaseEnd, 1, model.LabelSynFlood),
		entry(22, runlog.EventPhaseStart, 2, model.LabelUDPFlood),
		entry(30, runlog.EventPhaseEnd, 2, model.LabelUDPFlood),
	}
}

func TestFromEntriesNonOverlap(t *testing.T) {
	tl, err := FromEntries(threePhaseLog(), nil)
	if err != nil {
		t.Fatalf("FromEntries failed: %v", err)
	}
	ivs := tl.Intervals()
	if len(ivs) != 3 {
		t.Fatalf("Expected 3 intervals, got %d", len(ivs))
	}
	for i := 1; i < len(ivs); i++ {
		if ivs[i].Start.Before(ivs[i-1].End) {
			t.Errorf("Interval %d starts before interval %d ends", i, i-1)
		}
	}
}

func TestLabelFor(t *testing.T) {
	tl, err := FromEntries(threePhaseLog(), nil)
	if err != nil {
		t.Fatalf("FromEntries failed: %v", err)
	}

	cases := []struct {
		sec        float64
		label      model.Label
		confidence model.Confidence
	}{
		{5, model.LabelNormal, model.ConfidenceExact},
		{10, model.LabelNormal, model.ConfidenceExact}, // closed interval end
		{11, model.LabelUnknown, model.ConfidenceGap},
		{15, model.LabelSynFlood, model.ConfidenceExact},
		{21, model.LabelUnknown, model.ConfidenceGap},
		{25, model.LabelUDPFlood, model.ConfidenceExact},
		{-1, model.LabelUnknown, model.ConfidenceOutOfRange},
		{31, model.LabelUnknown, model.ConfidenceOutOfRange},
	}
	for _, c := range cases {
		label, conf := tl.LabelFor(at(c.sec))
		if label != c.label || conf != c.confidence {
			t.Errorf("LabelFor(t=%v): got (%s, %s), want (%s, %s)",
				c.sec, label, conf, c.label, c.confidence)
		}
	}
}

func TestMissingPhaseEndClosesAtNextStart(t *testing.T) {
	entries := []runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelNormal),
		entry(10, runlog.EventPhaseEnd, 0, model.LabelNormal),
		entry(12, runlog.EventPhaseStart, 1, model.LabelSynFlood),
		// phase 1 end lost to a crash
		entry(22, runlog.EventPhaseStart, 2, model.LabelUDPFlood),
		entry(30, runlog.EventPhaseEnd, 2, model.LabelUDPFlood),
	}
	tl, err := FromEntries(entries, nil)
	if err != nil {
		t.Fatalf("FromEntries must not fail on a missing phase_end: %v", err)
	}
	ivs := tl.Intervals()
	if len(ivs) != 3 {
		t.Fatalf("Expected 3 intervals, got %d", len(ivs))
	}
	if !ivs[1].End.Equal(at(22)) {
		t.Errorf("Phase 1 should close at phase 2 start, got %v", ivs[1].End)
	}
	if !ivs[1].Faulted {
		t.Error("Phase 1 should be marked faulted")
	}
	if len(tl.Faults()) == 0 {
		t.Error("Expected a fault note for the missing phase_end")
	}
}

func TestOutOfOrderTimestampFailsClosed(t *testing.T) {
	entries := []runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelNormal),
		entry(10, runlog.EventPhaseEnd, 0, model.LabelNormal),
		entry(12, runlog.EventPhaseStart, 1, model.LabelSynFlood),
		entry(8, runlog.EventPhaseEnd, 1, model.LabelSynFlood), // clock went backwards
		entry(22, runlog.EventPhaseStart, 2, model.LabelUDPFlood),
		entry(30, runlog.EventPhaseEnd, 2, model.LabelUDPFlood),
	}
	tl, err := FromEntries(entries, nil)
	if err != nil {
		t.Fatalf("FromEntries failed: %v", err)
	}
	// Phase 1 must be dropped, and t=15 must be gap, not guessed.
	label, conf := tl.LabelFor(at(15))
	if label != model.LabelUnknown || conf != model.ConfidenceGap {
		t.Errorf("Corrupt span should resolve as gap, got (%s, %s)", label, conf)
	}
	if len(tl.Faults()) == 0 {
		t.Error("Expected fault notes for corruption")
	}
}

func TestPhaseFaultMarker(t *testing.T) {
	entries := []runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelSynFlood),
		entry(2, runlog.EventPhaseFault, 0, model.LabelSynFlood),
		entry(10, runlog.EventPhaseEnd, 0, model.LabelSynFlood),
	}
	tl, err := FromEntries(entries, nil)
	if err != nil {
		t.Fatalf("FromEntries failed: %v", err)
	}
	if tl.AdapterFaults() != 1 {
		t.Errorf("Expected 1 adapter fault, got %d", tl.AdapterFaults())
	}
	if !tl.Intervals()[0].Faulted {
		t.Error("Faulted phase should be marked")
	}
}

func TestNeighbors(t *testing.T) {
	tl, err := FromEntries(threePhaseLog(), nil)
	if err != nil {
		t.Fatalf("FromEntries failed: %v", err)
	}
	prev, next := tl.Neighbors(at(21))
	if prev == nil || next == nil {
		t.Fatalf("Expected both neighbors for a gap timestamp")
	}
	if prev.PhaseID != 1 || next.PhaseID != 2 {
		t.Errorf("Got neighbors %d/%d, want 1/2", prev.PhaseID, next.PhaseID)
	}
}
