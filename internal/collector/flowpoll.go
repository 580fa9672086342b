package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"TraceForge/internal/config"
)

// FlowSinkHeader is the column layout of the flow CSV sink.
var FlowSinkHeader = []string{
	"poll_timestamp", "switch_id", "src_ip", "dst_ip", "dst_port", "protocol",
	"byte_count", "packet_count", "duration_sec",
}

// flowStatsResponse mirrors the controller's per-switch flow-stats body.
type flowStatsResponse struct {
	Flows []flowStatsEntry `json:"flows"`
}

type flowStatsEntry struct {
	Match struct {
		SrcIP    string `json:"src_ip"`
		DstIP    string `json:"dst_ip"`
		DstPort  uint16 `json:"dst_port"`
		Protocol uint8  `json:"protocol"`
	} `json:"match"`
	ByteCount   uint64  `json:"byte_count"`
	PacketCount uint64  `json:"packet_count"`
	DurationSec float64 `json:"duration_sec"`
}

// key identifies one flow-table entry across polls.
func (e flowStatsEntry) key(switchID string) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d",
		switchID, e.Match.SrcIP, e.Match.DstIP, e.Match.DstPort, e.Match.Protocol)
}

type flowCounters struct {
	bytes   uint64
	packets uint64
}

// FlowPoller polls the SDN controller's flow-statistics endpoint at a fixed
// interval and appends one FlowRecord row per entry per switch per poll,
// with byte/packet counters reported as deltas since the previous poll.
// A failed poll is logged and skipped; subsequent polls proceed.
type FlowPoller struct {
	cfg      config.FlowPollConfig
	interval time.Duration
	client   *http.Client
	sink     *CSVSink

	// prev holds cumulative counters from the previous poll per entry.
	prev map[string]flowCounters

	done chan struct{}
	wg   sync.WaitGroup
}

// NewFlowPoller creates a poller writing to the CSV file at path.
func NewFlowPoller(cfg config.FlowPollConfig, interval time.Duration, path string) (*FlowPoller, error) {
	sink, err := NewCSVSink(path, FlowSinkHeader)
	if err != nil {
		return nil, err
	}
	return &FlowPoller{
		cfg:      cfg,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		sink:     sink,
		prev:     make(map[string]flowCounters),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the polling loop.
func (fp *FlowPoller) Start(ctx context.Context) error {
	fp.wg.Add(1)
	go fp.run(ctx)
	log.Printf("Flow poller started: %d switches every %s", len(fp.cfg.Switches), fp.interval)
	return nil
}

func (fp *FlowPoller) run(ctx context.Context) {
	defer fp.wg.Done()
	ticker := time.NewTicker(fp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fp.pollAll()
		case <-ctx.Done():
			return
		case <-fp.done:
			// One final poll so the tail of the last phase is covered.
			fp.pollAll()
			return
		}
	}
}

func (fp *FlowPoller) pollAll() {
	now := time.Now().UTC()
	for _, sw := range fp.cfg.Switches {
		if err := fp.pollSwitch(sw, now); err != nil {
			log.Printf("Flow poll failed for switch %s: %v", sw, err)
		}
	}
}

func (fp *FlowPoller) pollSwitch(switchID string, ts time.Time) error {
	url := fmt.Sprintf("%s/stats/flow/%s", fp.cfg.ControllerURL, switchID)
	resp, err := fp.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controller returned %s", resp.Status)
	}

	var stats flowStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode flow stats: %w", err)
	}

	for _, e := range stats.Flows {
		k := e.key(switchID)
		last := fp.prev[k]
		fp.prev[k] = flowCounters{bytes: e.ByteCount, packets: e.PacketCount}

		// Counter reset (table entry replaced): report absolutes.
		byteDelta, packetDelta := e.ByteCount, e.PacketCount
		if e.ByteCount >= last.bytes && e.PacketCount >= last.packets {
			byteDelta -= last.bytes
			packetDelta -= last.packets
		}

		row := []string{
			ts.Format(time.RFC3339Nano),
			switchID,
			e.Match.SrcIP,
			e.Match.DstIP,
			strconv.Itoa(int(e.Match.DstPort)),
			strconv.Itoa(int(e.Match.Protocol)),
			strconv.FormatUint(byteDelta, 10),
			strconv.FormatUint(packetDelta, 10),
			strconv.FormatFloat(e.DurationSec, 'f', -1, 64),
		}
		if err := fp.sink.Append(row); err != nil {
			return err
		}
	}
	return nil
}

// Stop performs a final poll, flushes the sink and returns the row count.
func (fp *FlowPoller) Stop() (int, error) {
	close(fp.done)
	fp.wg.Wait()
	n, err := fp.sink.Close()
	log.Printf("Flow poller flushed %d records.", n)
	return n, err
}
