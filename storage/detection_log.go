package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// maxLineSize bounds a single detection line when reading history
const maxLineSize = 4 * 1024 * 1024

// detectionSchema describes a detection line. No field is required so that
// history written by older producers is still correlated; fields that are
// present must have the right type.
const detectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "schema_version": {"type": "string"},
    "src": {"type": ["string", "null"]},
    "dst": {"type": ["string", "null"]},
    "proto": {"type": ["string", "null"]},
    "rule_id": {"type": "string"},
    "severity": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "metadata": {"type": ["object", "null"]}
  }
}`

// tsLayouts are tried in order when parsing a history timestamp
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// historyLine shadows the typed timestamp so an unparseable ts does not
// reject the whole line
type historyLine struct {
	core.Detection
	TS json.RawMessage `json:"ts"`
}

// DetectionLog is the append-only detection sink and the history reader
// used by the correlator.
type DetectionLog struct {
	path   string
	logger *zap.SugaredLogger
	now    func() time.Time
	schema *gojsonschema.Schema

	mu     sync.Mutex
	w      *JSONLWriter
	closed bool
}

// NewDetectionLog creates a detection log at path. The file is opened on the
// first Append.
func NewDetectionLog(path string, logger *zap.SugaredLogger) (*DetectionLog, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(detectionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile detection schema: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DetectionLog{
		path:   path,
		logger: logger,
		now:    time.Now,
		schema: schema,
	}, nil
}

// SetClock replaces the clock used for unparseable history timestamps
func (l *DetectionLog) SetClock(now func() time.Time) {
	l.now = now
}

// Path returns the log file path
func (l *DetectionLog) Path() string {
	return l.path
}

// Append writes one detection as a JSON line
func (l *DetectionLog) Append(d *core.Detection) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLogClosed
	}
	if l.w == nil {
		w, err := OpenJSONL(l.path)
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.w = w
	}
	w := l.w
	l.mu.Unlock()

	return w.Write(d)
}

// Close closes the log for appending. Reading stays possible.
func (l *DetectionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.w == nil {
		return nil
	}
	return l.w.Close()
}

// ReadAll reads the entire detection history. Blank, non-JSON and
// schema-invalid lines are skipped. A missing log is an empty history.
func (l *DetectionLog) ReadAll(ctx context.Context) (*core.History, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return &core.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	defer f.Close()

	h := &core.History{}
	lines := NewLineReader(f, maxLineSize)
	for {
		raw, tooLong, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read detection log: %w", err)
		}

		line := h.Lines
		h.Lines++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if tooLong {
			l.skip(h, line, fmt.Sprintf("line exceeds %d bytes", maxLineSize))
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		d, reason := l.decode(raw)
		if d == nil {
			l.skip(h, line, reason)
			continue
		}
		h.Records = append(h.Records, core.HistoryRecord{Line: line, Detection: d})
	}
	return h, nil
}

func (l *DetectionLog) skip(h *core.History, line int, reason string) {
	h.Skipped++
	metrics.HistoryLinesSkipped.Inc()
	l.logger.Debugw("Skipping detection line", "line", line+1, "reason", reason)
}

func (l *DetectionLog) decode(raw []byte) (*core.Detection, string) {
	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, "invalid json"
	}
	if !result.Valid() {
		return nil, fmt.Sprintf("schema: %v", result.Errors())
	}

	var hl historyLine
	if err := json.Unmarshal(raw, &hl); err != nil {
		return nil, err.Error()
	}
	d := hl.Detection
	d.Timestamp = l.parseTS(hl.TS)
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return &d, ""
}

func (l *DetectionLog) parseTS(raw json.RawMessage) time.Time {
	var s string
	if len(raw) > 0 && json.Unmarshal(raw, &s) == nil {
		for _, layout := range tsLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return l.now().UTC()
}
