package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"TraceForge/internal/config"
	"TraceForge/internal/model"
	"TraceForge/pkg/pcap"

	"github.com/google/gopacket"
	gopcap "github.com/google/gopacket/pcap"
	"github.com/nats-io/nats.go"
)

// packetMsg is the wire shape of one captured packet on the NATS subject.
// The probe and the sink are the only peers, so plain JSON is enough.
type packetMsg struct {
	Ts       time.Time `json:"ts"`
	SrcIP    string    `json:"src_ip"`
	SrcPort  uint16    `json:"src_port"`
	DstIP    string    `json:"dst_ip"`
	DstPort  uint16    `json:"dst_port"`
	Protocol uint8     `json:"protocol"`
	Flags    string    `json:"flags"`
	Length   uint64    `json:"length"`
}

// PacketProbe captures packets from a live interface and publishes them to
// a NATS subject. The probe may run on a different host than the sink.
type PacketProbe struct {
	cfg    config.PacketCollectorConfig
	handle *gopcap.Handle
	nc     *nats.Conn
	wg     sync.WaitGroup

	published int
}

// NewPacketProbe creates a probe for the configured interface.
func NewPacketProbe(cfg config.PacketCollectorConfig) *PacketProbe {
	if cfg.SnapshotLen == 0 {
		cfg.SnapshotLen = 1600
	}
	return &PacketProbe{cfg: cfg}
}

// Start connects to NATS, opens the capture handle and begins publishing.
func (p *PacketProbe) Start(ctx context.Context) error {
	nc, err := nats.Connect(p.cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p.nc = nc
	log.Printf("Packet probe connected to NATS at %s", p.cfg.NATSURL)

	handle, err := gopcap.OpenLive(p.cfg.Interface, p.cfg.SnapshotLen, true, gopcap.BlockForever)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to open device %s: %w", p.cfg.Interface, err)
	}
	p.handle = handle

	p.wg.Add(1)
	go p.run(ctx)
	log.Printf("Packet probe capturing on %s, publishing to '%s'", p.cfg.Interface, p.cfg.Subject)
	return nil
}

func (p *PacketProbe) run(ctx context.Context) {
	defer p.wg.Done()
	source := gopacket.NewPacketSource(p.handle, p.handle.LinkType())
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-source.Packets():
			if !ok {
				return
			}
			rec, err := pcap.Parse(packet)
			if err != nil {
				// Non-IP traffic is expected on a live link; skip it.
				continue
			}
			if err := p.publish(rec); err != nil {
				log.Printf("Failed to publish packet: %v", err)
				continue
			}
			p.published++
			if p.published%10000 == 0 {
				log.Printf("%d packets published...", p.published)
			}
		}
	}
}

func (p *PacketProbe) publish(rec *model.PacketRecord) error {
	msg := packetMsg{
		Ts:       rec.Ts,
		SrcIP:    rec.Src.IP.String(),
		SrcPort:  rec.Src.Port,
		DstIP:    rec.Dst.IP.String(),
		DstPort:  rec.Dst.Port,
		Protocol: rec.Protocol,
		Flags:    rec.TCPFlags,
		Length:   rec.Length,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.cfg.Subject, data)
}

// Stop closes the capture handle, waits for the publish loop and drains
// the NATS connection. Returns the number of packets published.
func (p *PacketProbe) Stop() (int, error) {
	if p.handle != nil {
		p.handle.Close()
	}
	p.wg.Wait()
	if p.nc != nil {
		p.nc.Drain()
	}
	log.Printf("Packet probe stopped after %d packets.", p.published)
	return p.published, nil
}

// PacketSinkHeader is the column layout of the packet CSV sink.
var PacketSinkHeader = []string{
	"timestamp", "src_ip", "src_port", "dst_ip", "dst_port", "protocol", "flags", "length",
}

// PacketSink subscribes to the probe's subject and appends one CSV row per
// packet. It is the single writer of its sink.
type PacketSink struct {
	cfg  config.PacketCollectorConfig
	sink *CSVSink
	nc   *nats.Conn
	sub  *nats.Subscription
}

// NewPacketSink creates a sink writing to the CSV file at path.
func NewPacketSink(cfg config.PacketCollectorConfig, path string) (*PacketSink, error) {
	sink, err := NewCSVSink(path, PacketSinkHeader)
	if err != nil {
		return nil, err
	}
	return &PacketSink{cfg: cfg, sink: sink}, nil
}

// Start subscribes and begins appending rows.
func (s *PacketSink) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.nc = nc

	sub, err := nc.Subscribe(s.cfg.Subject, func(m *nats.Msg) {
		var msg packetMsg
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Printf("Error unmarshalling packet message: %v", err)
			return
		}
		row := []string{
			msg.Ts.UTC().Format(time.RFC3339Nano),
			msg.SrcIP,
			strconv.Itoa(int(msg.SrcPort)),
			msg.DstIP,
			strconv.Itoa(int(msg.DstPort)),
			strconv.Itoa(int(msg.Protocol)),
			msg.Flags,
			strconv.FormatUint(msg.Length, 10),
		}
		if err := s.sink.Append(row); err != nil {
			log.Printf("Error appending packet row: %v", err)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to '%s': %w", s.cfg.Subject, err)
	}
	s.sub = sub
	log.Printf("Packet sink subscribed to '%s'", s.cfg.Subject)
	return nil
}

// Stop unsubscribes, flushes the sink and returns the row count.
func (s *PacketSink) Stop() (int, error) {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	n, err := s.sink.Close()
	log.Printf("Packet sink flushed %d records.", n)
	return n, err
}
