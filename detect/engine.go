package detect

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"
)

// DetectionSink receives every detection produced by the engine
type DetectionSink interface {
	Append(d *core.Detection) error
}

// Engine routes events to the enabled analyzers and forwards their detections
// to the sink. A fault in one analyzer never stops the others.
type Engine struct {
	analyzers     []Analyzer
	sink          DetectionSink
	logger        *zap.SugaredLogger
	logEveryEvent bool
}

// NewEngine builds the analyzers enabled in opts
func NewEngine(opts Options, sink DetectionSink, logger *zap.SugaredLogger) (*Engine, error) {
	var analyzers []Analyzer

	if opts.Rules.ARPSpoof {
		analyzers = append(analyzers, NewARPMultiMAC(opts.Thresholds.ARPWindow))
	}
	if opts.Rules.ICMPFlood {
		analyzers = append(analyzers, NewICMPRate(opts.Thresholds.ICMPPerSec))
	}
	if opts.Rules.DNSSuspicious {
		dns, err := NewDNSSuspicious(opts.Thresholds.DNSLabelMax, opts.Thresholds.DNSNameMax,
			opts.Thresholds.DNSEntropyThreshold, opts.DNSCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create dns analyzer: %w", err)
		}
		analyzers = append(analyzers, dns)
	}
	if opts.Rules.HTTPKeyword {
		analyzers = append(analyzers, NewHTTPKeyword())
	}

	e := NewEngineWithAnalyzers(analyzers, sink, logger)
	e.logEveryEvent = opts.LogEveryEvent
	return e, nil
}

// NewEngineWithAnalyzers creates an engine over an explicit analyzer set
func NewEngineWithAnalyzers(analyzers []Analyzer, sink DetectionSink, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		analyzers: analyzers,
		sink:      sink,
		logger:    logger,
	}
}

// Analyzers returns the enabled analyzer names in evaluation order
func (e *Engine) Analyzers() []string {
	names := make([]string, 0, len(e.analyzers))
	for _, a := range e.analyzers {
		names = append(names, a.Name())
	}
	return names
}

// Process runs every enabled analyzer on ev and returns the detections produced
func (e *Engine) Process(ev *core.Event) []*core.Detection {
	if ev == nil {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.EventsProcessed.WithLabelValues(ev.Proto.String()).Inc()

	if e.logEveryEvent {
		e.logger.Debugw("event",
			"ts", ev.Timestamp,
			"src", ev.Src,
			"dst", ev.Dst,
			"proto", ev.Proto)
	}

	var out []*core.Detection
	for _, a := range e.analyzers {
		var d *core.Detection
		err := goroutine.Guard(func() error {
			var evalErr error
			d, evalErr = a.Evaluate(ev)
			return evalErr
		})
		if err != nil {
			metrics.DetectorFaults.WithLabelValues(a.RuleID()).Inc()
			e.logger.Errorw("event_error",
				"component", "engine",
				"rule_id", a.RuleID(),
				"src", ev.Src,
				"proto", ev.Proto,
				"ts", ev.Timestamp,
				"error", err)
			continue
		}
		if d == nil {
			continue
		}
		metrics.DetectionsEmitted.WithLabelValues(d.RuleID).Inc()
		out = append(out, d)
		e.emit(d)
	}
	return out
}

func (e *Engine) emit(d *core.Detection) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Append(d); err != nil {
		metrics.SinkErrors.WithLabelValues("detections").Inc()
		e.logger.Errorw("Failed to write detection",
			"component", "engine",
			"rule_id", d.RuleID,
			"error", err)
	}
}
