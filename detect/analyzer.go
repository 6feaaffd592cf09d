package detect

import (
	"time"

	"argus/core"
)

// Analyzer evaluates one rule against a single event.
// Evaluate returns a nil Detection when the rule does not fire or the event
// lacks the fields the rule needs.
type Analyzer interface {
	// Name is the rule flag that enables the analyzer
	Name() string
	RuleID() string
	Evaluate(ev *core.Event) (*core.Detection, error)
}

// Thresholds holds the numeric knobs of the analyzers
type Thresholds struct {
	ARPWindow           time.Duration
	ICMPPerSec          int
	DNSLabelMax         int
	DNSNameMax          int
	DNSEntropyThreshold float64
}

// Rules holds the per-rule enable flags
type Rules struct {
	DNSSuspicious bool
	ICMPFlood     bool
	ARPSpoof      bool
	HTTPKeyword   bool
}

// Options configures an Engine
type Options struct {
	Thresholds    Thresholds
	Rules         Rules
	DNSCacheSize  int
	LogEveryEvent bool
}

// Analyzer names, matching the rule flags in configuration
const (
	NameARPSpoof      = "arp_spoof"
	NameICMPFlood     = "icmp_flood"
	NameDNSSuspicious = "dns_suspicious"
	NameHTTPKeyword   = "http_keyword"
)
