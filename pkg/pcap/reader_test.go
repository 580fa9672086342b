package pcap

import (
	"net"
	"testing"
	"time"

	"TraceForge/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize layers: %v", err)
	}
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	m := packet.Metadata()
	m.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.CaptureLength = len(buf.Bytes())
	m.Length = len(buf.Bytes())
	return packet
}

func TestParseTCPPacket(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 5},
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 14600}
	tcp.SetNetworkLayerForChecksum(ip)

	rec, err := Parse(serialize(t, eth, ip, tcp))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.Protocol != model.ProtoTCP {
		t.Errorf("Protocol = %d, want %d", rec.Protocol, model.ProtoTCP)
	}
	if rec.Src.Port != 40000 || rec.Dst.Port != 80 {
		t.Errorf("Ports = %d->%d, want 40000->80", rec.Src.Port, rec.Dst.Port)
	}
	if !rec.Dst.IP.Equal(net.IP{10, 0, 0, 5}) {
		t.Errorf("Dst IP = %s", rec.Dst.IP)
	}
	if rec.TCPFlags != "SYN" {
		t.Errorf("TCPFlags = %q, want SYN", rec.TCPFlags)
	}
	if rec.Ts.IsZero() {
		t.Error("Timestamp not taken from capture metadata")
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Parsed record should validate: %v", err)
	}
}

func TestParseICMPPacket(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 5},
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}

	rec, err := Parse(serialize(t, eth, ip, icmp))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.Protocol != model.ProtoICMP {
		t.Errorf("Protocol = %d, want %d", rec.Protocol, model.ProtoICMP)
	}
	if rec.Src.Port != 0 || rec.Dst.Port != 0 {
		t.Errorf("ICMP should be portless, got %d->%d", rec.Src.Port, rec.Dst.Port)
	}
}

func TestParseRejectsNonIPv4(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 5},
	}
	if _, err := Parse(serialize(t, eth, arp)); err == nil {
		t.Error("Expected an error for a non-IPv4 packet")
	}
}
