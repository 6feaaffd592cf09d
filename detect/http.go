package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"argus/core"
)

// httpKeywords are matched case-insensitively anywhere in host+uri
var httpKeywords = []string{"admin", "password", "login"}

// keywordMatchTimeout bounds a single match against attacker-controlled input
const keywordMatchTimeout = 100 * time.Millisecond

// HTTPKeyword flags requests whose host or URI contains a sensitive keyword
type HTTPKeyword struct {
	re *regexp2.Regexp
}

// NewHTTPKeyword creates the analyzer
func NewHTTPKeyword() *HTTPKeyword {
	quoted := make([]string, len(httpKeywords))
	for i, kw := range httpKeywords {
		quoted[i] = regexp2.Escape(kw)
	}
	re := regexp2.MustCompile(strings.Join(quoted, "|"), regexp2.IgnoreCase)
	re.MatchTimeout = keywordMatchTimeout
	return &HTTPKeyword{re: re}
}

func (a *HTTPKeyword) Name() string   { return NameHTTPKeyword }
func (a *HTTPKeyword) RuleID() string { return core.RuleHTTPKeyword }

// Evaluate implements Analyzer
func (a *HTTPKeyword) Evaluate(ev *core.Event) (*core.Detection, error) {
	if ev == nil || ev.HTTP == nil {
		return nil, nil
	}
	host, uri := ev.HTTP.Host, ev.HTTP.URI

	ok, err := a.re.MatchString(host + uri)
	if err != nil {
		return nil, fmt.Errorf("keyword match: %w", err)
	}
	if !ok {
		return nil, nil
	}

	d := core.NewDetection(ev, core.RuleHTTPKeyword, core.SeverityLow, "HTTP keyword match",
		map[string]any{"host": host, "uri": uri})
	d.Proto = core.ProtoHTTP
	return d, nil
}
