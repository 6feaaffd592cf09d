package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"argus/core"
	"argus/storage"
)

// Supported input formats
const (
	FormatJSONL   = "jsonl"
	FormatMsgpack = "msgpack"
)

const (
	maxEventLineSize = 1024 * 1024
	// maxDeadLetterRaw bounds the raw text kept for an oversized line
	maxDeadLetterRaw = 4096
)

// Source yields normalized events. Next returns io.EOF once the input is
// exhausted.
type Source interface {
	Name() string
	Next() (*core.Event, error)
}

// OpenSource opens path in the given format. A path of "-" reads stdin.
// The returned closer releases the underlying file.
func OpenSource(path, format string, dlq *DLQ, logger *zap.SugaredLogger) (Source, io.Closer, error) {
	var r io.ReadCloser
	if path == "-" {
		r = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open events file: %w", err)
		}
		r = f
	}

	switch strings.ToLower(format) {
	case "", FormatJSONL:
		return NewJSONLSource(r, dlq, logger), r, nil
	case FormatMsgpack:
		return NewMsgpackSource(r, dlq, logger), r, nil
	default:
		r.Close()
		return nil, nil, fmt.Errorf("unsupported event format %q", format)
	}
}

// JSONLSource reads one JSON event per line. Blank lines are skipped;
// malformed, oversized and timestamp-less lines go to the dead-letter file.
type JSONLSource struct {
	lines  *storage.LineReader
	dlq    *DLQ
	logger *zap.SugaredLogger
	line   int
}

// NewJSONLSource creates a JSON lines source over r
func NewJSONLSource(r io.Reader, dlq *DLQ, logger *zap.SugaredLogger) *JSONLSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &JSONLSource{lines: storage.NewLineReader(r, maxEventLineSize), dlq: dlq, logger: logger}
}

func (s *JSONLSource) Name() string { return FormatJSONL }

// Next implements Source
func (s *JSONLSource) Next() (*core.Event, error) {
	for {
		data, tooLong, err := s.lines.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read events: %w", err)
		}
		s.line++

		if tooLong {
			s.reject(ReasonLineTooLong, fmt.Sprintf("line %d exceeds %d bytes", s.line, maxEventLineSize), data[:maxDeadLetterRaw])
			continue
		}
		raw := bytes.TrimSpace(data)
		if len(raw) == 0 {
			continue
		}

		var ev core.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.reject(ReasonParseFailure, fmt.Sprintf("line %d: %v", s.line, err), raw)
			continue
		}
		if ev.Timestamp.IsZero() {
			s.reject(ReasonMissingTS, fmt.Sprintf("line %d: event has no ts", s.line), raw)
			continue
		}
		normalize(&ev)
		return &ev, nil
	}
}

func (s *JSONLSource) reject(reason, details string, raw []byte) {
	s.logger.Warnw("Skipping event line", "line", s.line, "reason", reason)
	deadLetterEvent(s.dlq, &FailedEvent{
		Source:  FormatJSONL,
		Reason:  reason,
		Details: details,
		Raw:     string(raw),
	})
}

// MsgpackSource reads a stream of MessagePack-encoded events using the same
// field names as the JSON form. A corrupt stream cannot be resynchronized, so
// the first decode failure ends the source.
type MsgpackSource struct {
	dec    *msgpack.Decoder
	dlq    *DLQ
	logger *zap.SugaredLogger
	count  int
}

// NewMsgpackSource creates a MessagePack source over r
func NewMsgpackSource(r io.Reader, dlq *DLQ, logger *zap.SugaredLogger) *MsgpackSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	dec.SetCustomStructTag("json")
	return &MsgpackSource{dec: dec, dlq: dlq, logger: logger}
}

func (s *MsgpackSource) Name() string { return FormatMsgpack }

// Next implements Source. Records without a timestamp are dead-lettered and
// skipped.
func (s *MsgpackSource) Next() (*core.Event, error) {
	for {
		var ev core.Event
		if err := s.dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			deadLetterEvent(s.dlq, &FailedEvent{
				Source:  FormatMsgpack,
				Reason:  ReasonDecodeFailure,
				Details: fmt.Sprintf("record %d: %v", s.count+1, err),
			})
			return nil, fmt.Errorf("failed to decode msgpack event %d: %w", s.count+1, err)
		}
		s.count++
		if ev.Timestamp.IsZero() {
			s.logger.Warnw("Skipping event record", "record", s.count, "reason", ReasonMissingTS)
			deadLetterEvent(s.dlq, &FailedEvent{
				Source:  FormatMsgpack,
				Reason:  ReasonMissingTS,
				Details: fmt.Sprintf("record %d: event has no ts", s.count),
			})
			continue
		}
		normalize(&ev)
		return &ev, nil
	}
}

func normalize(ev *core.Event) {
	ev.Proto = core.ParseProto(string(ev.Proto))
}

func deadLetterEvent(dlq *DLQ, ev *FailedEvent) {
	if dlq == nil {
		return
	}
	_ = dlq.Add(ev)
}
