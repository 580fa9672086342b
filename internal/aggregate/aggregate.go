// Package aggregate rolls packet records up into bidirectional 5-tuple
// flow summaries. It stands in for an external flow-feature extractor
// when a run directory carries no aggregated table of its own.
package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"TraceForge/internal/model"
)

// DefaultFlowTimeout splits a 5-tuple into a new flow when the gap
// between consecutive packets exceeds it.
const DefaultFlowTimeout = 60 * time.Second

// flowState accumulates one in-progress bidirectional flow.
type flowState struct {
	start    time.Time
	last     time.Time
	src      model.Endpoint
	dst      model.Endpoint
	protocol uint8
	packets  uint64
	bytes    uint64
	// fwd counts packets travelling in the direction of the first packet.
	fwd uint64
	bwd uint64
}

// Aggregator builds AggregatedFlowRecords from a packet stream. Output
// is deterministic for a given input order: flows are emitted sorted by
// start time with ordinal record IDs, so re-aggregating the same capture
// yields byte-identical records.
type Aggregator struct {
	flowTimeout time.Duration
	open        map[string]*flowState
	closed      []*flowState
}

// New creates an Aggregator. A non-positive timeout falls back to
// DefaultFlowTimeout.
func New(flowTimeout time.Duration) *Aggregator {
	if flowTimeout <= 0 {
		flowTimeout = DefaultFlowTimeout
	}
	return &Aggregator{
		flowTimeout: flowTimeout,
		open:        make(map[string]*flowState),
	}
}

// canonicalKey maps both directions of a conversation onto one key by
// ordering the endpoints, so request and reply packets land in the same
// flow.
func canonicalKey(src, dst model.Endpoint, proto uint8) string {
	a, b := src.String(), dst.String()
	if a > b {
		a, b = b, a
	}
	return strings.Join([]string{a, b, strconv.Itoa(int(proto))}, "-")
}

// Add feeds one packet into the aggregator. Packets that fail validation
// are skipped; the caller labels those separately.
func (a *Aggregator) Add(p *model.PacketRecord) {
	if p.Validate() != nil {
		return
	}
	key := canonicalKey(p.Src, p.Dst, p.Protocol)

	fs, ok := a.open[key]
	if ok && p.Ts.Sub(fs.last) > a.flowTimeout {
		a.closed = append(a.closed, fs)
		ok = false
	}
	if !ok {
		// The first packet of the flow defines the forward direction.
		fs = &flowState{
			start:    p.Ts,
			src:      p.Src,
			dst:      p.Dst,
			protocol: p.Protocol,
		}
		a.open[key] = fs
	}

	fs.last = p.Ts
	fs.packets++
	fs.bytes += p.Length
	if p.Src.String() == fs.src.String() {
		fs.fwd++
	} else {
		fs.bwd++
	}
}

// Flush closes all open flows and returns every flow seen, sorted by
// start time with deterministic ordinal IDs. The aggregator is reset.
func (a *Aggregator) Flush() []model.Record {
	for _, fs := range a.open {
		a.closed = append(a.closed, fs)
	}
	a.open = make(map[string]*flowState)

	flows := a.closed
	a.closed = nil
	sort.SliceStable(flows, func(i, j int) bool {
		if !flows[i].start.Equal(flows[j].start) {
			return flows[i].start.Before(flows[j].start)
		}
		ki := canonicalKey(flows[i].src, flows[i].dst, flows[i].protocol)
		kj := canonicalKey(flows[j].src, flows[j].dst, flows[j].protocol)
		return ki < kj
	})

	records := make([]model.Record, 0, len(flows))
	for i, fs := range flows {
		duration := fs.last.Sub(fs.start)
		rec := &model.AggregatedFlowRecord{
			RecordID: fmt.Sprintf("agg-%06d", i),
			StartTs:  fs.start,
			Src:      fs.src,
			Dst:      fs.dst,
			Protocol: fs.protocol,
			Duration: duration,
			Packets:  fs.packets,
			Bytes:    fs.bytes,
		}
		if secs := duration.Seconds(); secs > 0 {
			rec.FwdPktRate = float64(fs.fwd) / secs
			rec.BwdPktRate = float64(fs.bwd) / secs
		}
		records = append(records, rec)
	}
	return records
}

// FromPackets is the one-shot form: aggregate a full packet slice and
// return the flow summaries.
func FromPackets(packets []model.Record, flowTimeout time.Duration) []model.Record {
	agg := New(flowTimeout)
	for _, r := range packets {
		if p, ok := r.(*model.PacketRecord); ok {
			agg.Add(p)
		}
	}
	return agg.Flush()
}
