package model

import (
	"fmt"
	"time"
)

// FormatKind tags the three telemetry record formats.
type FormatKind string

const (
	FormatPacket     FormatKind = "packet"
	FormatFlow       FormatKind = "flow"
	FormatAggregated FormatKind = "aggregated_flow"
)

// Formats lists all record formats in processing order.
var Formats = []FormatKind{FormatPacket, FormatFlow, FormatAggregated}

// Record is the abstract contract the labeling and reconciliation logic is
// written against. All three telemetry formats implement it; format-specific
// payloads stay on the concrete types.
type Record interface {
	// ID is deterministic for a given input file (format prefix + ordinal),
	// so repeated labeling runs produce identical assignment sets.
	ID() string
	Timestamp() time.Time
	Source() Endpoint
	Dest() Endpoint
	// Proto is the IP protocol number, 0 when the format did not carry one.
	Proto() uint8
	// Size is bytes for packets, byte deltas for flow samples, byte totals
	// for aggregated flows.
	Size() uint64
	// Validate reports why the record is unusable for labeling, nil if ok.
	Validate() error
}

// PacketRecord is a single captured packet.
type PacketRecord struct {
	RecordID string
	Ts       time.Time
	Src      Endpoint
	Dst      Endpoint
	Protocol uint8
	TCPFlags string
	Length   uint64
}

func (p *PacketRecord) ID() string           { return p.RecordID }
func (p *PacketRecord) Timestamp() time.Time { return p.Ts }
func (p *PacketRecord) Source() Endpoint     { return p.Src }
func (p *PacketRecord) Dest() Endpoint       { return p.Dst }
func (p *PacketRecord) Proto() uint8         { return p.Protocol }
func (p *PacketRecord) Size() uint64         { return p.Length }

func (p *PacketRecord) Validate() error {
	if p.Ts.IsZero() {
		return fmt.Errorf("packet %s: missing timestamp", p.RecordID)
	}
	if p.Src.IP == nil || p.Dst.IP == nil {
		return fmt.Errorf("packet %s: missing src/dst address", p.RecordID)
	}
	if p.Protocol == 0 {
		return fmt.Errorf("packet %s: missing protocol", p.RecordID)
	}
	return nil
}

// FlowRecord is one switch-level flow-table entry sampled at a poll tick.
// Counters are deltas since the previous poll of the same entry. Match
// fields may be empty for wildcard entries.
type FlowRecord struct {
	RecordID    string
	PollTs      time.Time
	SwitchID    string
	Src         Endpoint
	Dst         Endpoint
	Protocol    uint8
	ByteDelta   uint64
	PacketDelta uint64
	Duration    time.Duration
}

func (f *FlowRecord) ID() string           { return f.RecordID }
func (f *FlowRecord) Timestamp() time.Time { return f.PollTs }
func (f *FlowRecord) Source() Endpoint     { return f.Src }
func (f *FlowRecord) Dest() Endpoint       { return f.Dst }
func (f *FlowRecord) Proto() uint8         { return f.Protocol }
func (f *FlowRecord) Size() uint64         { return f.ByteDelta }

func (f *FlowRecord) Validate() error {
	if f.PollTs.IsZero() {
		return fmt.Errorf("flow %s: missing poll timestamp", f.RecordID)
	}
	if f.SwitchID == "" {
		return fmt.Errorf("flow %s: missing switch id", f.RecordID)
	}
	return nil
}

// AggregatedFlowRecord is a bidirectional 5-tuple flow summarizing many
// packets, as produced by an external flow-feature extractor.
type AggregatedFlowRecord struct {
	RecordID    string
	StartTs     time.Time
	Src         Endpoint
	Dst         Endpoint
	Protocol    uint8
	Duration    time.Duration
	Packets     uint64
	Bytes       uint64
	FwdPktRate  float64
	BwdPktRate  float64
}

func (a *AggregatedFlowRecord) ID() string           { return a.RecordID }
func (a *AggregatedFlowRecord) Timestamp() time.Time { return a.StartTs }
func (a *AggregatedFlowRecord) Source() Endpoint     { return a.Src }
func (a *AggregatedFlowRecord) Dest() Endpoint       { return a.Dst }
func (a *AggregatedFlowRecord) Proto() uint8         { return a.Protocol }
func (a *AggregatedFlowRecord) Size() uint64         { return a.Bytes }

func (a *AggregatedFlowRecord) Validate() error {
	if a.StartTs.IsZero() {
		return fmt.Errorf("aggregated flow %s: missing start timestamp", a.RecordID)
	}
	if a.Src.IP == nil || a.Dst.IP == nil {
		return fmt.Errorf("aggregated flow %s: missing src/dst address", a.RecordID)
	}
	return nil
}
