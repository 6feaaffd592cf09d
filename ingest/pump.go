package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"argus/core"
)

// Pump reads a Source and hands events to the detector over a bounded channel
type Pump struct {
	src     Source
	out     chan *core.Event
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewPump creates a pump with the given channel capacity. A positive
// eventsPerSec paces delivery; zero delivers as fast as the consumer reads.
func NewPump(src Source, buffer int, eventsPerSec float64, logger *zap.SugaredLogger) *Pump {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if buffer < 0 {
		buffer = 0
	}
	p := &Pump{
		src:    src,
		out:    make(chan *core.Event, buffer),
		logger: logger,
	}
	if eventsPerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(eventsPerSec), 1)
	}
	return p
}

// Events returns the channel the pump delivers to
func (p *Pump) Events() <-chan *core.Event {
	return p.out
}

// Run delivers events until the source is exhausted or ctx is cancelled.
// The channel is closed when Run returns. Exhausting the source is not an error.
func (p *Pump) Run(ctx context.Context) error {
	defer close(p.out)

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		ev, err := p.src.Next()
		if errors.Is(err, io.EOF) {
			p.logger.Infow("Event source exhausted", "source", p.src.Name(), "events", sent)
			return nil
		}
		if err != nil {
			return fmt.Errorf("source %s: %w", p.src.Name(), err)
		}
		select {
		case p.out <- ev:
			sent++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
