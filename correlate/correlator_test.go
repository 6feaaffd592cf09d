package correlate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
var runTime = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

type memoryHistory struct {
	mu      sync.Mutex
	records []core.HistoryRecord
}

func (m *memoryHistory) add(src, ruleID string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, core.HistoryRecord{
		Line: len(m.records),
		Detection: &core.Detection{
			Timestamp: ts,
			Src:       src,
			RuleID:    ruleID,
			Severity:  core.SeverityHigh,
			Metadata:  map[string]any{},
		},
	})
}

func (m *memoryHistory) ReadAll(context.Context) (*core.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := append([]core.HistoryRecord(nil), m.records...)
	return &core.History{Records: records, Lines: len(records)}, nil
}

type memoryAlerts struct {
	alerts []*core.Alert
}

func (m *memoryAlerts) Append(a *core.Alert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func burstHistory(n int) *memoryHistory {
	h := &memoryHistory{}
	for i := 0; i < n; i++ {
		h.add("10.0.0.9", core.RuleICMPRate, t0.Add(time.Duration(i)*time.Second))
	}
	return h
}

func newTestCorrelator(h HistoryReader, sink AlertSink, cursor CursorStore) *Correlator {
	c := NewCorrelator(DefaultOptions(), h, sink, cursor, nil)
	c.SetClock(func() time.Time { return runTime })
	return c
}

func TestBurstRuleThreshold(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		alerts int
	}{
		{"thirty detections one second apart", 30, 1},
		{"twenty nine detections", 29, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memoryAlerts{}
			res, err := newTestCorrelator(burstHistory(tt.n), sink, nil).Run(context.Background(), false)
			require.NoError(t, err)
			require.Len(t, res.Alerts, tt.alerts)
			if tt.alerts == 0 {
				return
			}
			a := res.Alerts[0]
			assert.Equal(t, core.AlertICMPFlood, a.AlertID)
			assert.Equal(t, core.SeverityHigh, a.Severity)
			assert.Equal(t, map[string]string{"src": "10.0.0.9"}, a.Entities)
			assert.Equal(t, 30, a.EvidenceCount)
			assert.Equal(t, runTime, a.Timestamp)
			assert.Equal(t, "High volume events from 10.0.0.9 in 60s", a.Summary)
			assert.Len(t, sink.alerts, 1)
		})
	}
}

func TestBurstRuleOneAlertPerSource(t *testing.T) {
	h := burstHistory(90)
	alerts := Evaluate(DefaultOptions(), mustRead(t, h), 0, runTime)
	require.Len(t, alerts, 2, "one burst alert plus one repetition alert")
	assert.Equal(t, core.AlertICMPFlood, alerts[0].AlertID)
	assert.Equal(t, 30, alerts[0].EvidenceCount)
	assert.Equal(t, core.AlertRepeatedRule, alerts[1].AlertID)
	assert.Equal(t, 90, alerts[1].EvidenceCount)
}

func TestBurstRuleSpreadOutDoesNotFire(t *testing.T) {
	h := &memoryHistory{}
	for i := 0; i < 40; i++ {
		h.add("10.0.0.9", core.RuleICMPRate, t0.Add(time.Duration(i)*3*time.Second))
	}
	alerts := Evaluate(DefaultOptions(), mustRead(t, h), 0, runTime)
	assert.Empty(t, alerts, "at most 21 detections fall within any 60s window")
}

func TestBurstRuleSortsTimestamps(t *testing.T) {
	h := &memoryHistory{}
	for i := 29; i >= 0; i-- {
		h.add("10.0.0.9", core.RuleICMPRate, t0.Add(time.Duration(i)*time.Second))
	}
	alerts := Evaluate(DefaultOptions(), mustRead(t, h), 0, runTime)
	require.Len(t, alerts, 1)
	assert.Equal(t, 30, alerts[0].EvidenceCount)
}

func TestRepetitionRuleThreshold(t *testing.T) {
	for _, n := range []int{49, 50} {
		h := &memoryHistory{}
		for i := 0; i < n; i++ {
			h.add("10.1.0."+string(rune('a'+i%26)), core.RuleDNSSuspicious, t0.Add(time.Duration(i)*time.Hour))
		}
		alerts := Evaluate(DefaultOptions(), mustRead(t, h), 0, runTime)
		if n == 49 {
			assert.Empty(t, alerts)
			continue
		}
		require.Len(t, alerts, 1)
		assert.Equal(t, core.AlertRepeatedRule, alerts[0].AlertID)
		assert.Equal(t, core.SeverityMedium, alerts[0].Severity)
		assert.Equal(t, map[string]string{"rule_id": core.RuleDNSSuspicious}, alerts[0].Entities)
		assert.Equal(t, 50, alerts[0].EvidenceCount)
	}
}

func TestFullModeReemitsIdenticalAlerts(t *testing.T) {
	sink := &memoryAlerts{}
	c := newTestCorrelator(burstHistory(30), sink, nil)

	first, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	second, err := c.Run(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, first.Full)
	assert.Equal(t, first.Alerts, second.Alerts)
	assert.Len(t, sink.alerts, 2, "every run re-emits the same alert")
}

func TestIncrementalCorrelation(t *testing.T) {
	h := burstHistory(30)
	sink := &memoryAlerts{}
	cursor := NewFileCursor(filepath.Join(t.TempDir(), "correlation_cursor.json"))
	c := newTestCorrelator(h, sink, cursor)

	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Equal(t, 0, res.Watermark)

	res, err = c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Alerts, "unchanged log emits nothing")
	assert.Equal(t, 30, res.Watermark)

	h.add("10.0.0.9", core.RuleICMPRate, t0.Add(30*time.Second))
	res, err = c.Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1, "new qualifying evidence emits again")
	assert.Equal(t, 31, res.Alerts[0].EvidenceCount)

	h.add("10.0.0.1", core.RuleHTTPKeyword, t0)
	res, err = c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Alerts, "new evidence for an unrelated source does not re-fire the burst")

	assert.Len(t, sink.alerts, 2)
}

func TestIncrementalIgnoresOldBurstWhenNewRecordsAreOutsideWindow(t *testing.T) {
	h := burstHistory(30)
	cursor := NewFileCursor(filepath.Join(t.TempDir(), "cursor.json"))
	c := newTestCorrelator(h, nil, cursor)

	_, err := c.Run(context.Background(), false)
	require.NoError(t, err)

	h.add("10.0.0.9", core.RuleICMPRate, t0.Add(time.Hour))
	res, err := c.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)
}

func TestFullFlagIgnoresWatermark(t *testing.T) {
	cursor := NewFileCursor(filepath.Join(t.TempDir(), "cursor.json"))
	c := newTestCorrelator(burstHistory(30), nil, cursor)

	_, err := c.Run(context.Background(), false)
	require.NoError(t, err)

	res, err := c.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.Full)
	assert.Len(t, res.Alerts, 1)

	stored, err := cursor.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Lines)
	assert.Equal(t, res.RunID, stored.RunID)
}

func TestWatermarkBeyondHistoryResets(t *testing.T) {
	cursor := NewFileCursor(filepath.Join(t.TempDir(), "cursor.json"))
	require.NoError(t, cursor.Save(Cursor{Lines: 500}))

	res, err := newTestCorrelator(burstHistory(30), nil, cursor).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Watermark)
	assert.Len(t, res.Alerts, 1)
}

func TestCorruptCursorFallsBackToFullHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	res, err := newTestCorrelator(burstHistory(30), nil, NewFileCursor(path)).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
}

type failingReader struct{}

func (failingReader) ReadAll(context.Context) (*core.History, error) {
	return nil, errors.New("permission denied")
}

func TestRunReaderError(t *testing.T) {
	_, err := newTestCorrelator(failingReader{}, nil, nil).Run(context.Background(), false)
	assert.ErrorContains(t, err, "permission denied")
}

func mustRead(t *testing.T, h HistoryReader) []core.HistoryRecord {
	t.Helper()
	hist, err := h.ReadAll(context.Background())
	require.NoError(t, err)
	return hist.Records
}

func TestRecordsWithoutRuleIDFeedBurstOnly(t *testing.T) {
	h := &memoryHistory{}
	for i := 0; i < 60; i++ {
		h.add("10.0.0.9", "", t0.Add(time.Duration(i)*time.Second))
	}
	alerts := Evaluate(DefaultOptions(), mustRead(t, h), 0, runTime)
	require.Len(t, alerts, 1)
	assert.Equal(t, core.AlertICMPFlood, alerts[0].AlertID)
	assert.Equal(t, "10.0.0.9", alerts[0].Entities["src"])
}
