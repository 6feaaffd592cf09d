package core

import (
	"time"
)

// Detection is a single rule-triggered finding emitted by an analyzer.
// One Detection is written as one JSON line to the detection log.
type Detection struct {
	Timestamp     time.Time      `json:"ts"`
	SchemaVersion string         `json:"schema_version"`
	Src           string         `json:"src"`
	Dst           string         `json:"dst"`
	Proto         Proto          `json:"proto"`
	RuleID        string         `json:"rule_id"`
	Severity      Severity       `json:"severity"`
	Summary       string         `json:"summary"`
	Metadata      map[string]any `json:"metadata"`
}

// NewDetection builds a Detection for the event that triggered it.
// The detection inherits the event's timestamp so that live capture and offline
// replay produce identical records.
func NewDetection(event *Event, ruleID string, severity Severity, summary string, metadata map[string]any) *Detection {
	if metadata == nil {
		metadata = map[string]any{}
	}
	d := &Detection{
		SchemaVersion: SchemaVersion,
		RuleID:        ruleID,
		Severity:      severity,
		Summary:       summary,
		Metadata:      metadata,
		Proto:         ProtoOther,
	}
	if event != nil {
		d.Timestamp = event.Timestamp.UTC()
		d.Src = event.Src
		d.Dst = event.Dst
		if event.Proto != "" {
			d.Proto = event.Proto
		}
	}
	return d
}

// Alert is a higher-level finding produced by correlating multiple detections.
type Alert struct {
	Timestamp     time.Time         `json:"ts"`
	AlertID       string            `json:"alert_id"`
	Severity      Severity          `json:"severity"`
	Summary       string            `json:"summary"`
	Entities      map[string]string `json:"entities"`
	EvidenceCount int               `json:"evidence_count"`
}

// NewAlert creates an Alert stamped with the given correlation time
func NewAlert(ts time.Time, alertID string, severity Severity, summary string, entities map[string]string, evidenceCount int) *Alert {
	if entities == nil {
		entities = map[string]string{}
	}
	return &Alert{
		Timestamp:     ts.UTC(),
		AlertID:       alertID,
		Severity:      severity,
		Summary:       summary,
		Entities:      entities,
		EvidenceCount: evidenceCount,
	}
}

// HistoryRecord is one detection read back from the detection log together
// with its zero-based line position in the log
type HistoryRecord struct {
	Line      int
	Detection *Detection
}

// History is the parseable content of a detection log.
// Lines counts every physical line, including the skipped ones.
type History struct {
	Records []HistoryRecord
	Lines   int
	Skipped int
}
