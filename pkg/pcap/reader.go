// Package pcap turns captured packets into packet records, either from a
// live capture handle (via Parse) or from a capture file on disk.
package pcap

import (
	"fmt"
	"log"
	"strings"
	"time"

	"TraceForge/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Parse extracts a packet record from a decoded packet. IPv4 TCP, UDP and
// ICMP are supported; anything else returns an error and is skipped by
// callers.
func Parse(packet gopacket.Packet) (*model.PacketRecord, error) {
	rec := &model.PacketRecord{
		Ts:     time.Now(),
		Length: uint64(len(packet.Data())),
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		rec.Ts = meta.Timestamp
	}

	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := l.(*layers.IPv4)
	rec.Src.IP = ip.SrcIP
	rec.Dst.IP = ip.DstIP
	rec.Protocol = uint8(ip.Protocol)

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.Src.Port = uint16(tcp.SrcPort)
		rec.Dst.Port = uint16(tcp.DstPort)
		rec.TCPFlags = tcpFlags(tcp)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.Src.Port = uint16(udp.SrcPort)
		rec.Dst.Port = uint16(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		// Portless; the protocol number is all the signatures need.
	default:
		return nil, fmt.Errorf("unsupported transport protocol %d", rec.Protocol)
	}
	return rec, nil
}

func tcpFlags(tcp *layers.TCP) string {
	var flags []string
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if tcp.URG {
		flags = append(flags, "URG")
	}
	return strings.Join(flags, "|")
}

// ReadFile reads every parseable packet from a capture file, assigning
// deterministic ordinal record ids. Unparseable packets are logged and
// skipped so one corrupt frame never sinks the batch.
func ReadFile(filePath string) ([]model.Record, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer handle.Close()

	var records []model.Record
	skipped := 0
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		rec, err := Parse(packet)
		if err != nil {
			skipped++
			continue
		}
		rec.RecordID = fmt.Sprintf("pkt-%06d", len(records))
		records = append(records, rec)
	}
	if skipped > 0 {
		log.Printf("Skipped %d unparseable packets in %s", skipped, filePath)
	}
	return records, nil
}
