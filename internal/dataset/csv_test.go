package dataset

import (
	"encoding/csv"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TraceForge/internal/model"
)

func TestReadPacketRecordsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.csv")
	content := "timestamp,src_ip,src_port,dst_ip,dst_port,protocol,flags,length\n" +
		"2026-03-01T12:00:05Z,10.0.0.1,40000,10.0.0.5,80,6,SYN,60\n" +
		"2026-03-01T12:00:06Z,10.0.0.2,40001,10.0.0.5,80,17,,120\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	records, err := ReadPacketRecords(path)
	if err != nil {
		t.Fatalf("ReadPacketRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	p := records[0].(*model.PacketRecord)
	if p.RecordID != "pkt-000000" {
		t.Errorf("RecordID = %s, want pkt-000000", p.RecordID)
	}
	if !p.Dst.IP.Equal(net.ParseIP("10.0.0.5")) || p.Dst.Port != 80 {
		t.Errorf("Dst = %s", p.Dst)
	}
	if p.Protocol != model.ProtoTCP || p.TCPFlags != "SYN" || p.Length != 60 {
		t.Errorf("Parsed fields wrong: %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Record should validate: %v", err)
	}
}

func TestReadPacketRecordsKeepsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.csv")
	content := "2026-03-01T12:00:05Z,10.0.0.1,40000,10.0.0.5,80,6,SYN,60\n" +
		"garbage,row\n" +
		"not-a-time,10.0.0.1,40000,10.0.0.5,80,6,SYN,60\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	records, err := ReadPacketRecords(path)
	if err != nil {
		t.Fatalf("ReadPacketRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Malformed rows must be kept, got %d records", len(records))
	}
	if err := records[0].Validate(); err != nil {
		t.Errorf("First record should validate: %v", err)
	}
	if err := records[1].Validate(); err == nil {
		t.Error("Short row should fail validation")
	}
	if err := records[2].Validate(); err == nil {
		t.Error("Bad-timestamp row should fail validation")
	}
}

func TestReadFlowRecordsWildcardMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.csv")
	content := "poll_timestamp,switch_id,src_ip,dst_ip,dst_port,protocol,byte_count,packet_count,duration_sec\n" +
		"2026-03-01T12:00:05Z,s1,,,0,0,1000,10,5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	records, err := ReadFlowRecords(path)
	if err != nil {
		t.Fatalf("ReadFlowRecords failed: %v", err)
	}
	f := records[0].(*model.FlowRecord)
	if err := f.Validate(); err != nil {
		t.Errorf("Wildcard flow entry is still a valid record: %v", err)
	}
	if f.Dst.IP != nil {
		t.Errorf("Wildcard dst should be nil, got %s", f.Dst.IP)
	}
	if f.ByteDelta != 1000 || f.PacketDelta != 10 {
		t.Errorf("Counters = %d/%d", f.ByteDelta, f.PacketDelta)
	}
}

func TestWriteLabeledAppendsLabelColumns(t *testing.T) {
	dir := t.TempDir()
	records := []model.Record{
		&model.PacketRecord{
			RecordID: "pkt-000000",
			Ts:       time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
			Src:      model.Endpoint{IP: net.ParseIP("10.0.0.1"), Port: 40000},
			Dst:      model.Endpoint{IP: net.ParseIP("10.0.0.5"), Port: 80},
			Protocol: model.ProtoTCP,
			TCPFlags: "SYN",
			Length:   60,
		},
	}
	assignments := []model.LabelAssignment{{
		RecordID: "pkt-000000",
		Format:   model.FormatPacket,
		Label:    model.LabelSynFlood,
		Source:   model.SourceIntervalMatch,
	}}

	path := filepath.Join(dir, "labeled_packets.csv")
	if err := WriteLabeled(path, model.FormatPacket, records, assignments); err != nil {
		t.Fatalf("WriteLabeled failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	header := rows[0]
	if header[len(header)-2] != "label" || header[len(header)-1] != "label_source" {
		t.Errorf("Header missing label columns: %v", header)
	}
	row := rows[1]
	if row[len(row)-2] != "syn_flood" || row[len(row)-1] != "interval_match" {
		t.Errorf("Labeled row = %v", row)
	}
}

func TestWriteDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")
	decisions := []model.ReconciliationDecision{{
		RecordID:       "pkt-000002",
		Format:         model.FormatPacket,
		PreviousLabel:  model.LabelUnknown,
		NewLabel:       model.LabelSynFlood,
		ChecksPassed:   []string{"within_drift_bound", "protocol_tcp", "victim_ip_match"},
		BoundaryOffset: 480 * time.Millisecond,
	}}
	if err := WriteDecisions(path, decisions); err != nil {
		t.Fatalf("WriteDecisions failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header + 1 row, got %d", len(rows))
	}
	if rows[1][3] != "syn_flood" || rows[1][6] != "480" {
		t.Errorf("Decision row = %v", rows[1])
	}
}
