package detect

import (
	"fmt"
	"sort"
	"time"

	"argus/core"
)

type arpObservation struct {
	ip  string
	mac string
}

// ARPMultiMAC flags an IP address announced by two or more distinct MAC
// addresses within the window. There is no cooldown: every qualifying packet
// produces a detection.
type ARPMultiMAC struct {
	window *Window[arpObservation]
}

// NewARPMultiMAC creates the analyzer with the given observation window
func NewARPMultiMAC(window time.Duration) *ARPMultiMAC {
	return &ARPMultiMAC{window: NewWindow[arpObservation](window)}
}

func (a *ARPMultiMAC) Name() string   { return NameARPSpoof }
func (a *ARPMultiMAC) RuleID() string { return core.RuleARPMultiMAC }

// Evaluate implements Analyzer
func (a *ARPMultiMAC) Evaluate(ev *core.Event) (*core.Detection, error) {
	if ev == nil || ev.ARP == nil || ev.ARP.SenderIP == "" || ev.ARP.SenderMAC == "" {
		return nil, nil
	}
	ip, mac := ev.ARP.SenderIP, ev.ARP.SenderMAC
	now := ev.Timestamp

	a.window.Append(now, arpObservation{ip: ip, mac: mac})
	a.window.Advance(now)

	set := Distinct(a.window,
		func(o arpObservation) bool { return o.ip == ip },
		func(o arpObservation) string { return o.mac })
	if len(set) < 2 {
		return nil, nil
	}

	macs := make([]string, 0, len(set))
	for m := range set {
		macs = append(macs, m)
	}
	sort.Strings(macs)

	windowSec := int(a.window.Horizon() / time.Second)
	d := core.NewDetection(ev, core.RuleARPMultiMAC, core.SeverityMedium,
		fmt.Sprintf("Multiple MACs observed for IP %s over %ds window", ip, windowSec),
		map[string]any{"macs": macs, "window": windowSec})
	d.Src = ip
	d.Proto = core.ProtoARP
	return d, nil
}
