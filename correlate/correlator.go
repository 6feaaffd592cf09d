package correlate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// Default rule parameters
const (
	DefaultBurstWindow     = 60 * time.Second
	DefaultBurstThreshold  = 30
	DefaultRepeatThreshold = 50
)

// HistoryReader returns the complete detection history
type HistoryReader interface {
	ReadAll(ctx context.Context) (*core.History, error)
}

// AlertSink receives emitted alerts
type AlertSink interface {
	Append(a *core.Alert) error
}

// CursorStore persists the correlation watermark
type CursorStore interface {
	Load() (Cursor, error)
	Save(c Cursor) error
}

// Options holds the correlation rule parameters
type Options struct {
	BurstWindow     time.Duration
	BurstThreshold  int
	RepeatThreshold int
}

// DefaultOptions returns the default rule parameters
func DefaultOptions() Options {
	return Options{
		BurstWindow:     DefaultBurstWindow,
		BurstThreshold:  DefaultBurstThreshold,
		RepeatThreshold: DefaultRepeatThreshold,
	}
}

// Result describes one correlation run
type Result struct {
	RunID     string
	Alerts    []*core.Alert
	History   *core.History
	Watermark int
	Full      bool
}

// Correlator applies the burst and repetition rules to the detection history
type Correlator struct {
	opts   Options
	reader HistoryReader
	sink   AlertSink
	cursor CursorStore
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewCorrelator creates a correlator. A nil cursor store makes every run a
// full run.
func NewCorrelator(opts Options, reader HistoryReader, sink AlertSink, cursor CursorStore, logger *zap.SugaredLogger) *Correlator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Correlator{
		opts:   opts,
		reader: reader,
		sink:   sink,
		cursor: cursor,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp alerts
func (c *Correlator) SetClock(now func() time.Time) {
	c.now = now
}

// Run reads the whole history, emits the alerts whose rules hold and, when a
// cursor store is configured, advances the watermark to the end of the
// history. In full mode the stored watermark is ignored and every qualifying
// alert is emitted again.
func (c *Correlator) Run(ctx context.Context, full bool) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Full: full || c.cursor == nil}

	h, err := c.reader.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection history: %w", err)
	}
	res.History = h

	if !res.Full {
		res.Watermark = c.loadWatermark(h.Lines)
	}

	c.logger.Infow("correlation_run",
		"component", "correlator",
		"run_id", res.RunID,
		"records", len(h.Records),
		"lines", h.Lines,
		"skipped", h.Skipped,
		"watermark", res.Watermark,
		"full", res.Full)

	res.Alerts = Evaluate(c.opts, h.Records, res.Watermark, c.now())
	for _, a := range res.Alerts {
		metrics.AlertsGenerated.WithLabelValues(a.AlertID).Inc()
		if c.sink == nil {
			continue
		}
		if err := c.sink.Append(a); err != nil {
			metrics.SinkErrors.WithLabelValues("alerts").Inc()
			c.logger.Errorw("Failed to write alert",
				"component", "correlator",
				"alert_id", a.AlertID,
				"error", err)
		}
	}

	if c.cursor != nil {
		next := Cursor{Lines: h.Lines, UpdatedAt: c.now().UTC(), RunID: res.RunID}
		if err := c.cursor.Save(next); err != nil {
			return res, fmt.Errorf("failed to save correlation cursor: %w", err)
		}
	}
	return res, nil
}

func (c *Correlator) loadWatermark(lines int) int {
	cur, err := c.cursor.Load()
	if err != nil {
		c.logger.Warnw("Ignoring unreadable correlation cursor",
			"component", "correlator",
			"error", err)
		return 0
	}
	if cur.Lines > lines {
		c.logger.Warnw("Detection log is shorter than the watermark, correlating from the start",
			"component", "correlator",
			"watermark", cur.Lines,
			"lines", lines)
		return 0
	}
	return cur.Lines
}

// Evaluate applies both rules to records. Only evidence at or beyond the
// watermark line counts as new; an alert is emitted when its rule holds and
// its evidence includes at least one new record. A watermark of zero
// evaluates the whole history as new.
func Evaluate(opts Options, records []core.HistoryRecord, watermark int, now time.Time) []*core.Alert {
	var alerts []*core.Alert
	alerts = append(alerts, burstAlerts(opts, records, watermark, now)...)
	alerts = append(alerts, repeatAlerts(opts, records, watermark, now)...)
	return alerts
}

type stamp struct {
	ts    time.Time
	fresh bool
}

func burstAlerts(opts Options, records []core.HistoryRecord, watermark int, now time.Time) []*core.Alert {
	var order []string
	bySrc := make(map[string][]stamp)
	for _, rec := range records {
		src := rec.Detection.Src
		if _, ok := bySrc[src]; !ok {
			order = append(order, src)
		}
		bySrc[src] = append(bySrc[src], stamp{ts: rec.Detection.Timestamp, fresh: rec.Line >= watermark})
	}

	var alerts []*core.Alert
	for _, src := range order {
		stamps := bySrc[src]
		sort.SliceStable(stamps, func(a, b int) bool { return stamps[a].ts.Before(stamps[b].ts) })

		// fresh[k] is the number of new records among stamps[:k]
		fresh := make([]int, len(stamps)+1)
		for k, s := range stamps {
			fresh[k+1] = fresh[k]
			if s.fresh {
				fresh[k+1]++
			}
		}

		i := 0
		for j := range stamps {
			for stamps[j].ts.Sub(stamps[i].ts) > opts.BurstWindow {
				i++
			}
			size := j - i + 1
			if size < opts.BurstThreshold || fresh[j+1]-fresh[i] == 0 {
				continue
			}
			alerts = append(alerts, core.NewAlert(now, core.AlertICMPFlood, core.SeverityHigh,
				fmt.Sprintf("High volume events from %s in %ds", src, int(opts.BurstWindow/time.Second)),
				map[string]string{"src": src}, size))
			break
		}
	}
	return alerts
}

func repeatAlerts(opts Options, records []core.HistoryRecord, watermark int, now time.Time) []*core.Alert {
	type tally struct {
		count int
		fresh bool
	}
	var order []string
	byRule := make(map[string]*tally)
	for _, rec := range records {
		id := rec.Detection.RuleID
		// records without a rule id only feed the burst rule and the views
		if id == "" {
			continue
		}
		t, ok := byRule[id]
		if !ok {
			t = &tally{}
			byRule[id] = t
			order = append(order, id)
		}
		t.count++
		if rec.Line >= watermark {
			t.fresh = true
		}
	}

	var alerts []*core.Alert
	for _, id := range order {
		t := byRule[id]
		if t.count < opts.RepeatThreshold || !t.fresh {
			continue
		}
		alerts = append(alerts, core.NewAlert(now, core.AlertRepeatedRule, core.SeverityMedium,
			fmt.Sprintf("Rule %s fired %d times", id, t.count),
			map[string]string{"rule_id": id}, t.count))
	}
	return alerts
}
