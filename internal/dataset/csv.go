// Package dataset reads the raw telemetry tables produced by the
// collectors and writes the labeled tables plus the decision trail.
// Readers never drop rows: a row that cannot be parsed becomes a record
// that fails validation, so it is counted and reported downstream instead
// of vanishing.
package dataset

import (
	"encoding/csv"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"TraceForge/internal/model"
)

const timeLayout = time.RFC3339Nano

// ReadPacketRecords loads the packet CSV produced by the packet sink.
func ReadPacketRecords(path string) ([]model.Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		rec := &model.PacketRecord{RecordID: fmt.Sprintf("pkt-%06d", i)}
		if len(row) >= 8 {
			rec.Ts = parseTime(row[0])
			rec.Src = parseEndpoint(row[1], row[2])
			rec.Dst = parseEndpoint(row[3], row[4])
			rec.Protocol = parseUint8(row[5])
			rec.TCPFlags = row[6]
			rec.Length = parseUint64(row[7])
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadFlowRecords loads the flow CSV produced by the flow poller.
func ReadFlowRecords(path string) ([]model.Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		rec := &model.FlowRecord{RecordID: fmt.Sprintf("flw-%06d", i)}
		if len(row) >= 9 {
			rec.PollTs = parseTime(row[0])
			rec.SwitchID = row[1]
			rec.Src = model.Endpoint{IP: net.ParseIP(row[2])}
			rec.Dst = parseEndpoint(row[3], row[4])
			rec.Protocol = parseUint8(row[5])
			rec.ByteDelta = parseUint64(row[6])
			rec.PacketDelta = parseUint64(row[7])
			rec.Duration = parseSeconds(row[8])
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadAggregatedRecords loads the bidirectional flow CSV produced by the
// external flow-feature extractor.
func ReadAggregatedRecords(path string) ([]model.Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	records := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		rec := &model.AggregatedFlowRecord{RecordID: fmt.Sprintf("agg-%06d", i)}
		if len(row) >= 11 {
			rec.StartTs = parseTime(row[0])
			rec.Src = parseEndpoint(row[1], row[2])
			rec.Dst = parseEndpoint(row[3], row[4])
			rec.Protocol = parseUint8(row[5])
			rec.Duration = parseSeconds(row[6])
			rec.Packets = parseUint64(row[7])
			rec.Bytes = parseUint64(row[8])
			rec.FwdPktRate = parseFloat(row[9])
			rec.BwdPktRate = parseFloat(row[10])
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadRecords dispatches on format kind.
func ReadRecords(format model.FormatKind, path string) ([]model.Record, error) {
	switch format {
	case model.FormatPacket:
		return ReadPacketRecords(path)
	case model.FormatFlow:
		return ReadFlowRecords(path)
	case model.FormatAggregated:
		return ReadAggregatedRecords(path)
	default:
		return nil, fmt.Errorf("unknown record format %q", format)
	}
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read record file '%s': %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	// Skip the header row if present.
	if _, err := time.Parse(timeLayout, rows[0][0]); err != nil {
		rows = rows[1:]
	}
	return rows, nil
}

func parseTime(s string) time.Time {
	ts, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func parseEndpoint(ip, port string) model.Endpoint {
	p, _ := strconv.ParseUint(port, 10, 16)
	return model.Endpoint{IP: net.ParseIP(ip), Port: uint16(p)}
}

func parseUint8(s string) uint8 {
	v, _ := strconv.ParseUint(s, 10, 8)
	return uint8(v)
}

func parseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseSeconds(s string) time.Duration {
	return time.Duration(parseFloat(s) * float64(time.Second))
}

// WriteLabeled writes one format's labeled table: the original schema plus
// label and label_source columns. Records and assignments are parallel
// slices in input order.
func WriteLabeled(path string, format model.FormatKind, records []model.Record, assignments []model.LabelAssignment) error {
	if len(records) != len(assignments) {
		return fmt.Errorf("%d records but %d assignments", len(records), len(assignments))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create labeled table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append(formatHeader(format), "label", "label_source")); err != nil {
		return err
	}
	for i, rec := range records {
		row := append(formatRow(format, rec),
			string(assignments[i].Label), string(assignments[i].Source))
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write labeled row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatHeader(format model.FormatKind) []string {
	switch format {
	case model.FormatPacket:
		return []string{"timestamp", "src_ip", "src_port", "dst_ip", "dst_port", "protocol", "flags", "length"}
	case model.FormatFlow:
		return []string{"poll_timestamp", "switch_id", "src_ip", "dst_ip", "dst_port", "protocol", "byte_count", "packet_count", "duration_sec"}
	default:
		return []string{"flow_start_timestamp", "src_ip", "src_port", "dst_ip", "dst_port", "protocol", "duration_sec", "packet_count", "byte_count", "fwd_pkt_rate", "bwd_pkt_rate"}
	}
}

func formatRow(format model.FormatKind, rec model.Record) []string {
	switch r := rec.(type) {
	case *model.PacketRecord:
		return []string{
			fmtTime(r.Ts), ipString(r.Src.IP), strconv.Itoa(int(r.Src.Port)),
			ipString(r.Dst.IP), strconv.Itoa(int(r.Dst.Port)),
			strconv.Itoa(int(r.Protocol)), r.TCPFlags,
			strconv.FormatUint(r.Length, 10),
		}
	case *model.FlowRecord:
		return []string{
			fmtTime(r.PollTs), r.SwitchID, ipString(r.Src.IP), ipString(r.Dst.IP),
			strconv.Itoa(int(r.Dst.Port)), strconv.Itoa(int(r.Protocol)),
			strconv.FormatUint(r.ByteDelta, 10), strconv.FormatUint(r.PacketDelta, 10),
			fmtSeconds(r.Duration),
		}
	case *model.AggregatedFlowRecord:
		return []string{
			fmtTime(r.StartTs), ipString(r.Src.IP), strconv.Itoa(int(r.Src.Port)),
			ipString(r.Dst.IP), strconv.Itoa(int(r.Dst.Port)),
			strconv.Itoa(int(r.Protocol)), fmtSeconds(r.Duration),
			strconv.FormatUint(r.Packets, 10), strconv.FormatUint(r.Bytes, 10),
			strconv.FormatFloat(r.FwdPktRate, 'f', -1, 64),
			strconv.FormatFloat(r.BwdPktRate, 'f', -1, 64),
		}
	default:
		return nil
	}
}

// WriteDecisions writes the reconciliation decision trail as CSV.
func WriteDecisions(path string, decisions []model.ReconciliationDecision) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create decisions table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"record_id", "format", "previous_label", "new_label",
		"checks_passed", "checks_failed", "boundary_offset_ms"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, d := range decisions {
		row := []string{
			d.RecordID, string(d.Format), string(d.PreviousLabel), string(d.NewLabel),
			strings.Join(d.ChecksPassed, "|"), strings.Join(d.ChecksFailed, "|"),
			strconv.FormatInt(d.BoundaryOffset.Milliseconds(), 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write decision row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func fmtTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(timeLayout)
}

func fmtSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
