package labeling

import (
	"net"
	"reflect"
	"testing"
	"time"

	"TraceForge/internal/model"
	"TraceForge/internal/runlog"
	"TraceForge/internal/timeline"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

func entry(sec float64, ev runlog.EventKind, id int, label model.Label) runlog.Entry {
	return runlog.Entry{Timestamp: at(sec), Event: ev, PhaseID: id, Label: label}
}

// testTimeline is normal[0,9.5], syn_flood[10.5,19.5], udp_flood[20.5,29.5]
// with sub-second transition gaps.
func testTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.FromEntries([]runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelNormal),
		entry(9.5, runlog.EventPhaseEnd, 0, model.LabelNormal),
		entry(10.5, runlog.EventPhaseStart, 1, model.LabelSynFlood),
		entry(19.5, runlog.EventPhaseEnd, 1, model.LabelSynFlood),
		entry(20.5, runlog.EventPhaseStart, 2, model.LabelUDPFlood),
		entry(29.5, runlog.EventPhaseEnd, 2, model.LabelUDPFlood),
	}, nil)
	if err != nil {
		t.Fatalf("Failed to build timeline: %v", err)
	}
	return tl
}

func packet(id string, sec float64, dstIP string, dstPort uint16, proto uint8) *model.PacketRecord {
	return &model.PacketRecord{
		RecordID: id,
		Ts:       at(sec),
		Src:      model.Endpoint{IP: net.ParseIP("10.0.0.1"), Port: 40000},
		Dst:      model.Endpoint{IP: net.ParseIP(dstIP), Port: dstPort},
		Protocol: proto,
		Length:   60,
	}
}

func TestLabelAssignsByInterval(t *testing.T) {
	engine := NewEngine(testTimeline(t))
	records := []model.Record{
		packet("pkt-000000", 5, "10.0.0.5", 80, model.ProtoTCP),
		packet("pkt-000001", 15, "10.0.0.5", 80, model.ProtoTCP),
		packet("pkt-000002", 10, "10.0.0.5", 80, model.ProtoTCP), // transition gap
		packet("pkt-000003", 35, "10.0.0.5", 80, model.ProtoTCP), // after run
	}
	got := engine.Label(model.FormatPacket, records)

	want := []struct {
		label model.Label
		src   model.AssignmentSource
		conf  model.Confidence
	}{
		{model.LabelNormal, model.SourceIntervalMatch, model.ConfidenceExact},
		{model.LabelSynFlood, model.SourceIntervalMatch, model.ConfidenceExact},
		{model.LabelUnknown, model.SourcePreservedUnknown, model.ConfidenceGap},
		{model.LabelUnknown, model.SourcePreservedUnknown, model.ConfidenceOutOfRange},
	}
	for i, w := range want {
		if got[i].Label != w.label || got[i].Source != w.src || got[i].Confidence != w.conf {
			t.Errorf("record %d: got (%s,%s,%s), want (%s,%s,%s)",
				i, got[i].Label, got[i].Source, got[i].Confidence, w.label, w.src, w.conf)
		}
	}
}

func TestLabelIsIdempotent(t *testing.T) {
	engine := NewEngine(testTimeline(t))
	records := []model.Record{
		packet("pkt-000000", 5, "10.0.0.5", 80, model.ProtoTCP),
		packet("pkt-000001", 10, "10.0.0.5", 80, model.ProtoTCP),
		packet("pkt-000002", 25, "10.0.0.5", 80, model.ProtoUDP),
		&model.PacketRecord{RecordID: "pkt-000003"}, // malformed
	}
	first := engine.Label(model.FormatPacket, records)
	second := engine.Label(model.FormatPacket, records)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Labeling is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestLabelExcludesMalformed(t *testing.T) {
	engine := NewEngine(testTimeline(t))
	records := []model.Record{
		&model.PacketRecord{RecordID: "pkt-000000", Ts: at(5)}, // no addresses
		packet("pkt-000001", 5, "10.0.0.5", 80, model.ProtoTCP),
	}
	got := engine.Label(model.FormatPacket, records)
	if got[0].Label != model.LabelMalformed || got[0].Source != model.SourceExcludedMalformed {
		t.Errorf("Malformed record got (%s,%s)", got[0].Label, got[0].Source)
	}
	c := Tally(got)
	if c.Malformed != 1 || c.IntervalMatch != 1 {
		t.Errorf("Tally = %+v, want 1 malformed and 1 interval_match", c)
	}
}

func TestCheckCoverageWarnsOnEmptyInterval(t *testing.T) {
	engine := NewEngine(testTimeline(t))
	sets := map[model.FormatKind][]model.Record{
		model.FormatPacket: {
			packet("pkt-000000", 5, "10.0.0.5", 80, model.ProtoTCP),
			packet("pkt-000001", 15, "10.0.0.5", 80, model.ProtoTCP),
			// nothing inside udp_flood
		},
	}
	warnings := engine.CheckCoverage(sets)
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 coverage warning, got %d: %v", len(warnings), warnings)
	}
}

func TestCheckCoverageSkipsFaultedPhase(t *testing.T) {
	tl, err := timeline.FromEntries([]runlog.Entry{
		entry(0, runlog.EventPhaseStart, 0, model.LabelSynFlood),
		entry(1, runlog.EventPhaseFault, 0, model.LabelSynFlood),
		entry(10, runlog.EventPhaseEnd, 0, model.LabelSynFlood),
	}, nil)
	if err != nil {
		t.Fatalf("Failed to build timeline: %v", err)
	}
	engine := NewEngine(tl)
	warnings := engine.CheckCoverage(map[model.FormatKind][]model.Record{
		model.FormatPacket: {},
	})
	if len(warnings) != 0 {
		t.Errorf("Faulted phase should not trigger coverage warnings, got %v", warnings)
	}
}
