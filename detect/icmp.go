package detect

import (
	"fmt"
	"time"

	"argus/core"
)

const (
	// ICMPWindow is the fixed horizon of the ICMP rate window
	ICMPWindow = time.Second
	// ICMPCooldown is the minimum gap between two detections for one source
	ICMPCooldown = 5 * time.Second
)

// ICMPRate flags a source whose ICMP packet count within one second exceeds
// the threshold. After a detection the source is silenced for ICMPCooldown;
// the window keeps counting while silenced.
type ICMPRate struct {
	threshold int
	window    *Window[string]
	lastAlert map[string]time.Time
}

// NewICMPRate creates the analyzer with the given packets-per-second threshold
func NewICMPRate(perSec int) *ICMPRate {
	return &ICMPRate{
		threshold: perSec,
		window:    NewWindow[string](ICMPWindow),
		lastAlert: make(map[string]time.Time),
	}
}

func (a *ICMPRate) Name() string   { return NameICMPFlood }
func (a *ICMPRate) RuleID() string { return core.RuleICMPRate }

// Evaluate implements Analyzer
func (a *ICMPRate) Evaluate(ev *core.Event) (*core.Detection, error) {
	if ev == nil || ev.ICMP == nil {
		return nil, nil
	}
	src := ev.ICMP.SrcAddr
	if src == "" {
		src = ev.Src
	}
	if src == "" {
		return nil, nil
	}
	now := ev.Timestamp

	a.window.Append(now, src)
	a.window.Advance(now)

	count := a.window.Count(func(s string) bool { return s == src })
	if count <= a.threshold {
		return nil, nil
	}
	if last, ok := a.lastAlert[src]; ok && now.Sub(last) < ICMPCooldown {
		return nil, nil
	}
	a.lastAlert[src] = now

	d := core.NewDetection(ev, core.RuleICMPRate, core.SeverityHigh,
		fmt.Sprintf("ICMP echo rate %d/s exceeds threshold %d", count, a.threshold),
		map[string]any{"rate": count, "threshold": a.threshold})
	d.Src = src
	d.Proto = core.ProtoICMP
	return d, nil
}
