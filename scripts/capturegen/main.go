// capturegen builds a complete synthetic run directory: a pcap whose
// traffic follows the configured phase schedule, plus the matching
// execution log. It exists so the labeling pipeline can be exercised
// end to end without live capture or real flood tools.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"TraceForge/internal/config"
	"TraceForge/internal/model"
	"TraceForge/internal/runlog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	outDir := flag.String("o", "data/runs/synthetic", "Output run directory.")
	pps := flag.Int("pps", 200, "Packets per second of synthetic traffic.")
	seed := flag.Int64("seed", 1, "PRNG seed; the same seed reproduces the same capture.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	phases, err := cfg.BuildPhases()
	if err != nil {
		log.Fatalf("Failed to build phases: %v", err)
	}
	settleGap, err := cfg.SettleGap()
	if err != nil {
		log.Fatalf("Failed to parse settle gap: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	f, err := os.Create(filepath.Join(*outDir, "packets.pcap"))
	if err != nil {
		log.Fatalf("Failed to create capture file: %v", err)
	}
	defer f.Close()
	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}
	logw, err := runlog.NewWriter(filepath.Join(*outDir, "execution.log"))
	if err != nil {
		log.Fatalf("Failed to create execution log: %v", err)
	}
	defer logw.Close()

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC().Truncate(time.Second)
	total := 0

	for _, phase := range phases {
		start := now
		end := start.Add(phase.PlannedDuration)
		if err := logw.Append(runlog.Entry{Timestamp: start, Event: runlog.EventPhaseStart, PhaseID: phase.ID, Label: phase.Label}); err != nil {
			log.Fatalf("Failed to append phase_start: %v", err)
		}

		count := int(phase.PlannedDuration.Seconds()) * *pps
		if count < 1 {
			count = 1
		}
		step := phase.PlannedDuration / time.Duration(count)
		victim := net.ParseIP(phase.VictimID)
		attacker := net.ParseIP(phase.AttackerID)
		for i := 0; i < count; i++ {
			ts := start.Add(time.Duration(i) * step)
			if err := writePacket(pcapWriter, rng, ts, phase.Label, attacker, victim); err != nil {
				log.Fatalf("Failed to write packet: %v", err)
			}
		}
		total += count

		if err := logw.Append(runlog.Entry{Timestamp: end, Event: runlog.EventPhaseEnd, PhaseID: phase.ID, Label: phase.Label}); err != nil {
			log.Fatalf("Failed to append phase_end: %v", err)
		}
		now = end.Add(settleGap)
	}

	log.Printf("Wrote %d packets across %d phases into %s", total, len(phases), *outDir)
	log.Printf("Label it with: tf-label -config %s -run %s -packets %s",
		*configPath, *outDir, filepath.Join(*outDir, "packets.pcap"))
}

// writePacket serializes one packet whose shape matches the phase label:
// floods and the advanced attacks target the victim, normal phases carry
// a benign bidirectional mix.
func writePacket(w *pcapgo.Writer, rng *rand.Rand, ts time.Time, label model.Label, attacker, victim net.IP) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, SrcIP: attacker, DstIP: victim}
	payload := make([]byte, rng.Intn(512)+64)

	var transport gopacket.SerializableLayer
	switch label {
	case model.LabelSynFlood, model.LabelAdSyn, model.LabelAdSlow:
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(rng.Intn(64511) + 1024),
			DstPort: 80,
			SYN:     true,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transport = tcp
	case model.LabelUDPFlood, model.LabelAdUDP:
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(rng.Intn(64511) + 1024),
			DstPort: 53,
		}
		udp.SetNetworkLayerForChecksum(ip)
		transport = udp
	case model.LabelICMPFlood:
		ip.Protocol = layers.IPProtocolICMPv4
		transport = &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		}
	default:
		// Benign mix: random hosts on the victim's subnet talking to the
		// victim and to each other, with replies.
		ip.Protocol = layers.IPProtocolTCP
		ip.SrcIP = net.IPv4(10, 0, 0, byte(rng.Intn(250)+2))
		if rng.Intn(2) == 0 {
			ip.DstIP = net.IPv4(10, 0, 0, byte(rng.Intn(250)+2))
		}
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(rng.Intn(64511) + 1024),
			DstPort: layers.TCPPort([]int{80, 443, 22, 8080}[rng.Intn(4)]),
			ACK:     true,
			PSH:     rng.Intn(2) == 0,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		return err
	}
	data := buf.Bytes()
	return w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}
