package detect

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"argus/core"
)

type dnsVerdict struct {
	longLabel   bool
	tooLong     bool
	highEntropy bool
	entropy     float64
}

func (v dnsVerdict) suspicious() bool {
	return v.longLabel || v.tooLong || v.highEntropy
}

// DNSSuspicious flags query names with an overlong label, an overlong total
// length, or a high character entropy. Verdicts are memoized per name.
type DNSSuspicious struct {
	labelMax         int
	nameMax          int
	entropyThreshold float64
	cache            *lru.Cache[string, dnsVerdict]
}

// NewDNSSuspicious creates the analyzer. A cacheSize of zero disables memoization.
func NewDNSSuspicious(labelMax, nameMax int, entropyThreshold float64, cacheSize int) (*DNSSuspicious, error) {
	a := &DNSSuspicious{
		labelMax:         labelMax,
		nameMax:          nameMax,
		entropyThreshold: entropyThreshold,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, dnsVerdict](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create dns verdict cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

func (a *DNSSuspicious) Name() string   { return NameDNSSuspicious }
func (a *DNSSuspicious) RuleID() string { return core.RuleDNSSuspicious }

// Evaluate implements Analyzer
func (a *DNSSuspicious) Evaluate(ev *core.Event) (*core.Detection, error) {
	if ev == nil || ev.DNS == nil || ev.DNS.QueryName == "" {
		return nil, nil
	}
	name := ev.DNS.QueryName

	v := a.verdict(name)
	if !v.suspicious() {
		return nil, nil
	}

	d := core.NewDetection(ev, core.RuleDNSSuspicious, core.SeverityMedium, "Suspicious DNS query name",
		map[string]any{
			"name":       name,
			"long_label": v.longLabel,
			"too_long":   v.tooLong,
			"entropy":    v.entropy,
		})
	d.Proto = core.ProtoDNS
	return d, nil
}

func (a *DNSSuspicious) verdict(name string) dnsVerdict {
	if a.cache != nil {
		if v, ok := a.cache.Get(name); ok {
			return v
		}
	}
	v := a.score(name)
	if a.cache != nil {
		a.cache.Add(name, v)
	}
	return v
}

func (a *DNSSuspicious) score(name string) dnsVerdict {
	var v dnsVerdict
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			continue
		}
		if utf8.RuneCountInString(label) > a.labelMax {
			v.longLabel = true
			break
		}
	}
	v.tooLong = utf8.RuneCountInString(name) > a.nameMax

	entropy := ShannonEntropy(name)
	v.highEntropy = entropy >= a.entropyThreshold
	v.entropy = round2(entropy)
	return v
}
