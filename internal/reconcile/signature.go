// Package reconcile resolves unknown labels by validating records against
// phase-specific traffic signatures. It never touches a label that was
// assigned by interval match: it only ever sees the unknown subset.
package reconcile

import (
	"net"

	"TraceForge/internal/config"
	"TraceForge/internal/model"
)

// Check names recorded in decision entries.
const (
	CheckProtoTCP         = "protocol_tcp"
	CheckProtoUDP         = "protocol_udp"
	CheckProtoICMP        = "protocol_icmp"
	CheckVictimIP         = "victim_ip_match"
	CheckVictimPort       = "victim_port_match"
	CheckNotVictim        = "not_victim_directed"
	CheckMissingFields    = "missing_match_fields"
	CheckWithinDriftBound = "within_drift_bound"
)

// Params hold the victim endpoint a signature predicate checks against.
type Params struct {
	VictimIP   net.IP
	VictimPort uint16
}

// ParamsFromConfig converts the config signature table into predicate
// parameters keyed by label.
func ParamsFromConfig(sigs map[string]config.SignatureParams) map[model.Label]Params {
	out := make(map[model.Label]Params, len(sigs))
	for name, sp := range sigs {
		out[model.Label(name)] = Params{
			VictimIP:   net.ParseIP(sp.VictimIP),
			VictimPort: sp.VictimPort,
		}
	}
	return out
}

// Signature is a pure predicate over a record's fields characterizing
// "this record plausibly belongs to traffic class X". It returns the names
// of the checks that passed and failed; the record matches only when
// nothing failed. One signature exists per label and is reused identically
// across all three record formats.
type Signature func(r model.Record, p Params) (passed, failed []string)

// signatures maps each phase label to its single predicate.
var signatures = map[model.Label]Signature{
	model.LabelSynFlood:  protoVictimIP(model.ProtoTCP, CheckProtoTCP),
	model.LabelUDPFlood:  protoVictimIP(model.ProtoUDP, CheckProtoUDP),
	model.LabelICMPFlood: protoVictimIP(model.ProtoICMP, CheckProtoICMP),
	model.LabelAdSyn:     protoVictimEndpoint(model.ProtoTCP, CheckProtoTCP),
	model.LabelAdUDP:     protoVictimEndpoint(model.ProtoUDP, CheckProtoUDP),
	model.LabelAdSlow:    protoVictimEndpoint(model.ProtoTCP, CheckProtoTCP),
	model.LabelNormal:    notVictimDirected,
}

// SignatureFor returns the predicate for a label.
func SignatureFor(label model.Label) (Signature, bool) {
	s, ok := signatures[label]
	return s, ok
}

// protoVictimIP matches flood traffic: right protocol, aimed at the victim
// host. Port is irrelevant for volumetric floods.
func protoVictimIP(proto uint8, protoCheck string) Signature {
	return func(r model.Record, p Params) (passed, failed []string) {
		passed, failed = checkProto(r, proto, protoCheck, passed, failed)
		passed, failed = checkVictimIP(r, p, passed, failed)
		return passed, failed
	}
}

// protoVictimEndpoint matches adversarial traffic aimed at one service:
// right protocol, victim host and victim port.
func protoVictimEndpoint(proto uint8, protoCheck string) Signature {
	return func(r model.Record, p Params) (passed, failed []string) {
		passed, failed = checkProto(r, proto, protoCheck, passed, failed)
		passed, failed = checkVictimIP(r, p, passed, failed)
		if r.Dest().Port == 0 {
			failed = append(failed, CheckMissingFields)
		} else if p.VictimPort != 0 && r.Dest().Port == p.VictimPort {
			passed = append(passed, CheckVictimPort)
		} else {
			failed = append(failed, CheckVictimPort)
		}
		return passed, failed
	}
}

// notVictimDirected is the complement signature for benign traffic: the
// record does not target the configured victim endpoint.
func notVictimDirected(r model.Record, p Params) (passed, failed []string) {
	dst := r.Dest()
	if dst.IP == nil {
		// A wildcard flow entry gives no evidence either way.
		failed = append(failed, CheckMissingFields)
		return passed, failed
	}
	if p.VictimIP != nil && dst.IP.Equal(p.VictimIP) {
		failed = append(failed, CheckNotVictim)
	} else {
		passed = append(passed, CheckNotVictim)
	}
	return passed, failed
}

func checkProto(r model.Record, proto uint8, name string, passed, failed []string) ([]string, []string) {
	switch r.Proto() {
	case proto:
		passed = append(passed, name)
	case 0:
		failed = append(failed, CheckMissingFields)
	default:
		failed = append(failed, name)
	}
	return passed, failed
}

func checkVictimIP(r model.Record, p Params, passed, failed []string) ([]string, []string) {
	dst := r.Dest()
	if dst.IP == nil {
		failed = append(failed, CheckMissingFields)
		return passed, failed
	}
	if p.VictimIP != nil && dst.IP.Equal(p.VictimIP) {
		passed = append(passed, CheckVictimIP)
	} else {
		failed = append(failed, CheckVictimIP)
	}
	return passed, failed
}
