package ingest

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"argus/metrics"
	"argus/storage"
)

// Dead-letter reasons
const (
	ReasonParseFailure  = "parse_failure"
	ReasonDecodeFailure = "decode_failure"
	ReasonMissingTS     = "missing_ts"
	ReasonLineTooLong   = "line_too_long"
)

// FailedEvent is an input record that could not be decoded into an Event
type FailedEvent struct {
	Source  string
	Reason  string
	Details string
	Raw     string
}

type deadLetter struct {
	Timestamp time.Time `json:"ts"`
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	Details   string    `json:"details"`
	Raw       string    `json:"raw"`
}

// DLQ is the append-only dead-letter file for malformed event input
type DLQ struct {
	w      *storage.JSONLWriter
	logger *zap.SugaredLogger
	now    func() time.Time
}

// OpenDLQ opens the dead-letter file at path for appending
func OpenDLQ(path string, logger *zap.SugaredLogger) (*DLQ, error) {
	w, err := storage.OpenJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DLQ{w: w, logger: logger, now: time.Now}, nil
}

// Add writes a failed event to the dead-letter file
func (d *DLQ) Add(ev *FailedEvent) error {
	metrics.DeadLetterEvents.WithLabelValues(ev.Reason).Inc()

	rec := deadLetter{
		Timestamp: d.now().UTC(),
		Source:    ev.Source,
		Reason:    ev.Reason,
		Details:   ev.Details,
		Raw:       ev.Raw,
	}
	if err := d.w.Write(rec); err != nil {
		d.logger.Errorw("Failed to write event to dead-letter file",
			"source", ev.Source,
			"reason", ev.Reason,
			"error", err)
		return fmt.Errorf("failed to write event to dead-letter file: %w", err)
	}

	d.logger.Debugw("Event written to dead-letter file", "source", ev.Source, "reason", ev.Reason)
	return nil
}

// Close closes the dead-letter file
func (d *DLQ) Close() error {
	return d.w.Close()
}
