package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestLog(t *testing.T) *DetectionLog {
	t.Helper()
	log, err := NewDetectionLog(filepath.Join(t.TempDir(), "logs", "detections.jsonl"), nil)
	require.NoError(t, err)
	log.SetClock(func() time.Time { return fixedNow })
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func sampleDetection(src string, ts time.Time) *core.Detection {
	ev := &core.Event{Timestamp: ts, Src: src, Dst: "10.0.0.1", Proto: core.ProtoICMP}
	return core.NewDetection(ev, core.RuleICMPRate, core.SeverityHigh, "rate", map[string]any{"rate": 12})
}

func TestDetectionLogAppendAndReadAll(t *testing.T) {
	log := newTestLog(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow.Add(time.Duration(i)*time.Second))))
	}

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, h.Lines)
	assert.Equal(t, 0, h.Skipped)
	require.Len(t, h.Records, 3)

	for i, rec := range h.Records {
		assert.Equal(t, i, rec.Line)
		assert.Equal(t, "10.0.0.5", rec.Detection.Src)
		assert.Equal(t, core.RuleICMPRate, rec.Detection.RuleID)
		assert.Equal(t, fixedNow.Add(time.Duration(i)*time.Second), rec.Detection.Timestamp)
		assert.Equal(t, float64(12), rec.Detection.Metadata["rate"])
	}
}

func TestDetectionLogWritesOneObjectPerLine(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"ts", "schema_version", "src", "dst", "proto", "rule_id", "severity", "summary", "metadata"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestDetectionLogSkipsMalformedLines(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))

	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n" +
		"not json at all\n" +
		`{"src":"10.0.0.6"}` + "\n" +
		`["an","array"]` + "\n" +
		`{"rule_id":42}` + "\n" +
		`{"ts":"garbage","src":"10.0.0.7","rule_id":"DNS_SUSPICIOUS"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, log.Append(sampleDetection("10.0.0.8", fixedNow)))

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, h.Lines)
	assert.Equal(t, 3, h.Skipped)
	require.Len(t, h.Records, 4)

	noRule := h.Records[1]
	assert.Equal(t, 3, noRule.Line)
	assert.Equal(t, "10.0.0.6", noRule.Detection.Src)
	assert.Empty(t, noRule.Detection.RuleID)

	fallback := h.Records[2]
	assert.Equal(t, 6, fallback.Line)
	assert.Equal(t, "10.0.0.7", fallback.Detection.Src)
	assert.Equal(t, fixedNow, fallback.Detection.Timestamp, "unparseable ts falls back to the reader clock")
	assert.NotNil(t, fallback.Detection.Metadata)

	assert.Equal(t, 7, h.Records[3].Line)
}

func TestDetectionLogSkipsOversizedLine(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))

	huge := `{"src":"10.0.0.6","rule_id":"DNS_SUSPICIOUS","summary":"` + strings.Repeat("x", maxLineSize+1024) + `"}`
	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(huge + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, log.Append(sampleDetection("10.0.0.8", fixedNow)))

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, h.Lines)
	assert.Equal(t, 1, h.Skipped)
	require.Len(t, h.Records, 2)
	assert.Equal(t, 0, h.Records[0].Line)
	assert.Equal(t, 2, h.Records[1].Line)
	assert.Equal(t, "10.0.0.8", h.Records[1].Detection.Src)
}

func TestLineReader(t *testing.T) {
	input := "short\n" + strings.Repeat("a", 10) + "\n\nlast-without-newline"
	r := NewLineReader(strings.NewReader(input), 8)

	line, tooLong, err := r.Next()
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "short", string(line))

	line, tooLong, err = r.Next()
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Equal(t, "aaaaaaaa", string(line))

	line, tooLong, err = r.Next()
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Empty(t, line)

	line, tooLong, err = r.Next()
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Equal(t, "last-wit", string(line))

	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReaderExactCap(t *testing.T) {
	r := NewLineReader(strings.NewReader("12345678\n"), 8)
	line, tooLong, err := r.Next()
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "12345678", string(line))
}

func TestDetectionLogParsesNaiveTimestamps(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(log.Path()), 0o755))
	require.NoError(t, os.WriteFile(log.Path(),
		[]byte(`{"ts":"2024-05-01T09:30:15.123456","src":"a","rule_id":"R"}`+"\n"), 0o644))

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, h.Records, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 15, 123456000, time.UTC), h.Records[0].Detection.Timestamp)
}

func TestDetectionLogMissingFileIsEmptyHistory(t *testing.T) {
	log := newTestLog(t)

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.Records)
	assert.Equal(t, 0, h.Lines)
}

func TestDetectionLogReadAllHonorsContext(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := log.ReadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectionLogAppendAfterClose(t *testing.T) {
	log := newTestLog(t)
	require.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))
	require.NoError(t, log.Close())

	err := log.Append(sampleDetection("10.0.0.5", fixedNow))
	assert.True(t, errors.Is(err, ErrLogClosed))
	require.NoError(t, log.Close())
}

func TestDetectionLogConcurrentAppends(t *testing.T) {
	log := newTestLog(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, log.Append(sampleDetection("10.0.0.5", fixedNow)))
			}
		}()
	}
	wg.Wait()

	h, err := log.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.Records, 400)
	assert.Equal(t, 0, h.Skipped)
}

func TestAlertLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	log, err := OpenAlertLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(core.NewAlert(fixedNow, core.AlertRepeatedRule, core.SeverityMedium, "Rule X fired 50 times", map[string]string{"rule_id": "X"}, 50)))
	require.NoError(t, log.Close())
	assert.ErrorIs(t, log.Append(core.NewAlert(fixedNow, core.AlertRepeatedRule, core.SeverityMedium, "", nil, 1)), ErrLogClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ts":"2024-05-01T12:00:00Z","alert_id":"ALERT_REPEATED_RULE","severity":"medium","summary":"Rule X fired 50 times","entities":{"rule_id":"X"},"evidence_count":50}`, string(data))
}
