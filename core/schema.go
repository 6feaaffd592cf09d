package core

import (
	"time"
)

// Event is the canonical, protocol-tagged observation derived from one captured packet.
// At most one protocol sub-record is expected to be set; analyzers only look at
// the sub-record they understand.
type Event struct {
	Timestamp time.Time `json:"ts" example:"2024-05-01T12:00:00Z"`
	Src       string    `json:"src,omitempty" example:"192.168.1.100"`
	Dst       string    `json:"dst,omitempty" example:"192.168.1.1"`
	Proto     Proto     `json:"proto" example:"DNS"`
	Length    *int      `json:"length,omitempty"`

	ARP  *ARPFields  `json:"arp,omitempty"`
	ICMP *ICMPFields `json:"icmp,omitempty"`
	DNS  *DNSFields  `json:"dns,omitempty"`
	HTTP *HTTPFields `json:"http,omitempty"`
}

// ARPFields carries the sender addresses of an ARP packet
type ARPFields struct {
	SenderIP  string `json:"sender_ip,omitempty"`
	SenderMAC string `json:"sender_mac,omitempty"`
}

// ICMPFields carries the ICMP source address
type ICMPFields struct {
	SrcAddr string `json:"src_addr,omitempty"`
}

// DNSFields carries the queried name of a DNS request
type DNSFields struct {
	QueryName string `json:"query_name,omitempty"`
}

// HTTPFields carries the request host and URI
type HTTPFields struct {
	Host string `json:"host,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// NewEvent creates an Event for the given protocol stamped with the current UTC time
func NewEvent(proto Proto) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Proto:     proto,
	}
}

// Variant returns the protocol of the sub-record carried by the event, or
// ProtoOther when the event has none.
func (e *Event) Variant() Proto {
	switch {
	case e == nil:
		return ProtoOther
	case e.ARP != nil:
		return ProtoARP
	case e.ICMP != nil:
		return ProtoICMP
	case e.DNS != nil:
		return ProtoDNS
	case e.HTTP != nil:
		return ProtoHTTP
	default:
		return ProtoOther
	}
}
