package model

import (
	"fmt"
	"net"
	"time"
)

// Label identifies the traffic class of a phase or of a labeled record.
type Label string

const (
	LabelNormal    Label = "normal"
	LabelSynFlood  Label = "syn_flood"
	LabelUDPFlood  Label = "udp_flood"
	LabelICMPFlood Label = "icmp_flood"
	LabelAdSyn     Label = "ad_syn"
	LabelAdUDP     Label = "ad_udp"
	LabelAdSlow    Label = "ad_slow"

	// LabelUnknown marks records not covered by any phase interval.
	LabelUnknown Label = "unknown"
	// LabelMalformed marks records that failed their format's validation.
	LabelMalformed Label = "malformed"
)

// PhaseLabels lists the labels a phase may be scheduled with.
var PhaseLabels = []Label{
	LabelNormal, LabelSynFlood, LabelUDPFlood, LabelICMPFlood,
	LabelAdSyn, LabelAdUDP, LabelAdSlow,
}

// ParseLabel validates a label string from config or from the execution log.
func ParseLabel(s string) (Label, error) {
	for _, l := range PhaseLabels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown phase label %q", s)
}

// IsAttack reports whether the label denotes attack traffic.
func (l Label) IsAttack() bool {
	return l != LabelNormal && l != LabelUnknown && l != LabelMalformed && l != ""
}

// IP protocol numbers used by the signature predicates.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// Endpoint is one side of a conversation. Port is zero for portless
// protocols (ICMP) and for wildcard flow-table matches.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) String() string {
	if e.IP == nil {
		return "*"
	}
	if e.Port == 0 {
		return e.IP.String()
	}
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// Phase is one scheduled block of homogeneous traffic. Label, endpoints and
// PlannedDuration are set at schedule-build time; ActualStart and ActualEnd
// are stamped by the scheduler as it executes and are immutable after the
// run ends. Downstream components never read Phase directly, only the
// execution log the scheduler writes.
type Phase struct {
	ID              int
	Label           Label
	AttackerID      string
	VictimID        string
	PlannedDuration time.Duration
	ActualStart     time.Time
	ActualEnd       time.Time
}
