package dataset

import (
	"context"
	"fmt"
	"log"

	"TraceForge/internal/config"
	"TraceForge/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var createTableStatements = []string{
	`
CREATE TABLE IF NOT EXISTS labeled_packets (
    RunID       String,
    RecordID    String,
    Timestamp   DateTime64(9),
    SrcIP       String,
    SrcPort     UInt16,
    DstIP       String,
    DstPort     UInt16,
    Protocol    UInt8,
    Flags       String,
    Length      UInt64,
    Label       String,
    LabelSource String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, Timestamp);
`,
	`
CREATE TABLE IF NOT EXISTS labeled_flows (
    RunID       String,
    RecordID    String,
    PollTime    DateTime64(9),
    SwitchID    String,
    SrcIP       String,
    DstIP       String,
    DstPort     UInt16,
    Protocol    UInt8,
    ByteCount   UInt64,
    PacketCount UInt64,
    DurationSec Float64,
    Label       String,
    LabelSource String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(PollTime)
ORDER BY (RunID, PollTime);
`,
	`
CREATE TABLE IF NOT EXISTS labeled_aggregated_flows (
    RunID       String,
    RecordID    String,
    StartTime   DateTime64(9),
    SrcIP       String,
    SrcPort     UInt16,
    DstIP       String,
    DstPort     UInt16,
    Protocol    UInt8,
    DurationSec Float64,
    PacketCount UInt64,
    ByteCount   UInt64,
    FwdPktRate  Float64,
    BwdPktRate  Float64,
    Label       String,
    LabelSource String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (RunID, StartTime);
`,
	`
CREATE TABLE IF NOT EXISTS label_decisions (
    RunID            String,
    RecordID         String,
    Format           String,
    PreviousLabel    String,
    NewLabel         String,
    ChecksPassed     Array(String),
    ChecksFailed     Array(String),
    BoundaryOffsetMs Int64,
    DecidedAt        DateTime64(9)
) ENGINE = MergeTree()
ORDER BY (RunID, RecordID);
`,
}

var insertTargets = map[model.FormatKind]string{
	model.FormatPacket:     "labeled_packets",
	model.FormatFlow:       "labeled_flows",
	model.FormatAggregated: "labeled_aggregated_flows",
}

// ClickHouseWriter persists the labeled tables and the decision trail to
// ClickHouse via batch inserts.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and ensures the tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	for _, stmt := range createTableStatements {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")
	return &ClickHouseWriter{conn: conn}, nil
}

// WriteLabeled batch-inserts one format's labeled records.
func (w *ClickHouseWriter) WriteLabeled(ctx context.Context, runID string, format model.FormatKind, records []model.Record, assignments []model.LabelAssignment) error {
	if len(records) != len(assignments) {
		return fmt.Errorf("%d records but %d assignments", len(records), len(assignments))
	}
	table, ok := insertTargets[format]
	if !ok {
		return fmt.Errorf("unknown record format %q", format)
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i, rec := range records {
		label := string(assignments[i].Label)
		source := string(assignments[i].Source)
		switch r := rec.(type) {
		case *model.PacketRecord:
			err = batch.Append(runID, r.RecordID, r.Ts,
				ipString(r.Src.IP), r.Src.Port, ipString(r.Dst.IP), r.Dst.Port,
				r.Protocol, r.TCPFlags, r.Length, label, source)
		case *model.FlowRecord:
			err = batch.Append(runID, r.RecordID, r.PollTs, r.SwitchID,
				ipString(r.Src.IP), ipString(r.Dst.IP), r.Dst.Port,
				r.Protocol, r.ByteDelta, r.PacketDelta, r.Duration.Seconds(), label, source)
		case *model.AggregatedFlowRecord:
			err = batch.Append(runID, r.RecordID, r.StartTs,
				ipString(r.Src.IP), r.Src.Port, ipString(r.Dst.IP), r.Dst.Port,
				r.Protocol, r.Duration.Seconds(), r.Packets, r.Bytes,
				r.FwdPktRate, r.BwdPktRate, label, source)
		default:
			err = fmt.Errorf("unexpected record type %T", rec)
		}
		if err != nil {
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d labeled %s records to ClickHouse", len(records), format)
	return nil
}

// WriteDecisions batch-inserts the decision trail.
func (w *ClickHouseWriter) WriteDecisions(ctx context.Context, runID string, decisions []model.ReconciliationDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO label_decisions")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, d := range decisions {
		err = batch.Append(runID, d.RecordID, string(d.Format),
			string(d.PreviousLabel), string(d.NewLabel),
			d.ChecksPassed, d.ChecksFailed,
			d.BoundaryOffset.Milliseconds(), d.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to append decision to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d decisions to ClickHouse", len(decisions))
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
