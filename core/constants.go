package core

import "strings"

// SchemaVersion is written into every Detection record.
const SchemaVersion = "1.0"

// Rule identifiers emitted by the analyzers.
const (
	RuleARPMultiMAC   = "ARP_MULTIMAC"
	RuleICMPRate      = "ICMP_RATE"
	RuleDNSSuspicious = "DNS_SUSPICIOUS"
	RuleHTTPKeyword   = "HTTP_KEYWORD"
)

// Alert identifiers emitted by the correlator.
const (
	AlertICMPFlood    = "ALERT_ICMP_FLOOD"
	AlertRepeatedRule = "ALERT_REPEATED_RULE"
)

// Severity represents the severity of a detection or alert
type Severity string

const (
	// SeverityLow is used for informational matches such as keyword hits
	SeverityLow Severity = "low"
	// SeverityMedium is used for suspicious but ambiguous behaviour
	SeverityMedium Severity = "medium"
	// SeverityHigh is used for floods and confirmed abuse patterns
	SeverityHigh Severity = "high"
)

// String returns the string representation
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// Proto is the protocol tag of an Event
type Proto string

const (
	ProtoARP   Proto = "ARP"
	ProtoICMP  Proto = "ICMP"
	ProtoDNS   Proto = "DNS"
	ProtoHTTP  Proto = "HTTP"
	ProtoTCP   Proto = "TCP"
	ProtoUDP   Proto = "UDP"
	ProtoOther Proto = "OTHER"
)

// ParseProto maps a protocol name onto the closed Proto set.
// Matching is case-insensitive; anything unknown becomes ProtoOther.
func ParseProto(s string) Proto {
	switch p := Proto(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProtoARP, ProtoICMP, ProtoDNS, ProtoHTTP, ProtoTCP, ProtoUDP:
		return p
	default:
		return ProtoOther
	}
}

// String returns the string representation
func (p Proto) String() string {
	return string(p)
}

// UnmarshalText normalizes protocol names during JSON and MessagePack decoding.
func (p *Proto) UnmarshalText(text []byte) error {
	*p = ParseProto(string(text))
	return nil
}
