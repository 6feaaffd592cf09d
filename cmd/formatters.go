package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"argus/bootstrap"
	"argus/core"
	"argus/correlate"
	"argus/detect"
)

const barWidth = 40

// runSummary is the result of a run or live command
type runSummary struct {
	RunID      string `json:"run_id"`
	Events     int    `json:"events"`
	Detections int    `json:"detections"`
	Reason     string `json:"reason"`
	Output     string `json:"output"`
}

func newRunSummary(app *bootstrap.App, stats detect.RunStats) runSummary {
	return runSummary{
		RunID:      app.RunID,
		Events:     stats.Events,
		Detections: stats.Detections,
		Reason:     stats.Reason,
		Output:     app.Detections.Path(),
	}
}

// renderRunStats prints the outcome of a detection run
func renderRunStats(w io.Writer, s runSummary) {
	successColor.Fprintf(w, "✓ Processed %d events, %d detections\n", s.Events, s.Detections)
	printField(w, "Run ID", s.RunID)
	printField(w, "Stopped", s.Reason)
	printField(w, "Detections", s.Output)
}

// renderAlerts prints one "[severity] alert_id: summary" line per alert
func renderAlerts(w io.Writer, alerts []*core.Alert) {
	for _, a := range alerts {
		severityColor(a.Severity).Fprintf(w, "[%s]", a.Severity)
		fmt.Fprintf(w, " %s: %s\n", a.AlertID, a.Summary)
	}
}

// renderCorrelationSummary prints the run totals after the alert lines
func renderCorrelationSummary(w io.Writer, res *correlate.Result) {
	mode := "incremental"
	if res.Full {
		mode = "full"
	}
	if len(res.Alerts) == 0 {
		warningColor.Fprintf(w, "No new alerts (%s, %d detections)\n", mode, len(res.History.Records))
	} else {
		successColor.Fprintf(w, "✓ %d alerts (%s, %d detections)\n", len(res.Alerts), mode, len(res.History.Records))
	}
	if res.History.Skipped > 0 {
		errorColor.Fprintf(w, "%d unreadable detection lines skipped\n", res.History.Skipped)
	}
}

// renderReport prints every populated view
func renderReport(w io.Writer, r reportView) {
	if r.Timeline != nil {
		renderTimeline(w, r.Timeline)
	}
	if r.TopSources != nil {
		renderCounts(w, "TOP SOURCES", "Source", r.TopSources)
	}
	if r.RuleFrequency != nil {
		renderCounts(w, "RULE FREQUENCY", "Rule", r.RuleFrequency)
	}
}

// renderTimeline prints one row per minute with a proportional bar
func renderTimeline(w io.Writer, buckets []correlate.Bucket) {
	headerColor.Fprintln(w, "TIMELINE (UTC, per minute)")
	headerColor.Fprintln(w, strings.Repeat("=", 70))
	if len(buckets) == 0 {
		warningColor.Fprintln(w, "No detections")
		return
	}

	peak := 0
	for _, b := range buckets {
		peak = max(peak, b.Count)
	}
	for _, b := range buckets {
		fmt.Fprintf(w, "%-17s %7d  %s\n", b.Minute, b.Count, bar(b.Count, peak))
	}
	fmt.Fprintln(w)
}

// renderCounts prints a ranked key/count table
func renderCounts(w io.Writer, title, keyHeader string, counts []correlate.Count) {
	headerColor.Fprintln(w, title)
	headerColor.Fprintln(w, strings.Repeat("=", 70))
	if len(counts) == 0 {
		warningColor.Fprintln(w, "No detections")
		return
	}
	fmt.Fprintf(w, "%-4s %-40s %10s\n", "#", keyHeader, "Count")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for i, c := range counts {
		key := c.Key
		if key == "" {
			key = "(none)"
		}
		if len(key) > 40 {
			key = key[:37] + "..."
		}
		fmt.Fprintf(w, "%-4d %-40s %10d\n", i+1, key, c.Count)
	}
	fmt.Fprintln(w)
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-14s %s\n", key+":", value)
}

// severityColor maps alert severity to an output color
func severityColor(s core.Severity) *color.Color {
	switch s {
	case core.SeverityHigh:
		return errorColor
	case core.SeverityMedium:
		return warningColor
	default:
		return infoColor
	}
}

func bar(n, peak int) string {
	if peak == 0 || n == 0 {
		return ""
	}
	width := n * barWidth / peak
	if width == 0 {
		width = 1
	}
	return strings.Repeat("█", width)
}
