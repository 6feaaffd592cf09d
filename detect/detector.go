package detect

import (
	"context"

	"go.uber.org/zap"

	"argus/core"
)

// Shutdown reasons reported by Detector.Run
const (
	ReasonEOF         = "eof"
	ReasonInterrupted = "interrupted"
)

// RunStats summarizes one detector run
type RunStats struct {
	Events     int
	Detections int
	Reason     string
}

// Detector is the single consumer that drives the engine from an event channel.
// Each event is processed by every enabled analyzer before the next one is read.
type Detector struct {
	engine *Engine
	in     <-chan *core.Event
	logger *zap.SugaredLogger
}

// NewDetector creates a detector reading from in
func NewDetector(engine *Engine, in <-chan *core.Event, logger *zap.SugaredLogger) *Detector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{
		engine: engine,
		in:     in,
		logger: logger,
	}
}

// Run processes events until the input channel is closed or ctx is cancelled.
// Cancellation is observed between events; an event already received is
// always evaluated by every analyzer.
func (d *Detector) Run(ctx context.Context) RunStats {
	var stats RunStats
	d.logger.Infow("Detector started", "analyzers", d.engine.Analyzers())

	for {
		select {
		case <-ctx.Done():
			stats.Reason = ReasonInterrupted
			d.logger.Infow("Detector stopped",
				"reason", stats.Reason,
				"events", stats.Events,
				"detections", stats.Detections)
			return stats
		case ev, ok := <-d.in:
			if !ok {
				stats.Reason = ReasonEOF
				d.logger.Infow("Detector stopped",
					"reason", stats.Reason,
					"events", stats.Events,
					"detections", stats.Detections)
				return stats
			}
			if ev == nil {
				continue
			}
			stats.Events++
			stats.Detections += len(d.engine.Process(ev))
		}
	}
}
