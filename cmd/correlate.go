package cmd

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"argus/core"
	"argus/correlate"
)

// viewFlags selects the reporting views
type viewFlags struct {
	timeline  bool
	top       bool
	ruleStats bool
}

func (v viewFlags) any() bool {
	return v.timeline || v.top || v.ruleStats
}

func (v *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&v.timeline, "timeline", false, "Show detections per minute")
	cmd.Flags().BoolVar(&v.top, "top", false, "Show the top 10 sources")
	cmd.Flags().BoolVar(&v.ruleStats, "rule-stats", false, "Show detections per rule")
}

// reportView is the JSON form of the reporting views
type reportView struct {
	Timeline      []correlate.Bucket `json:"timeline,omitempty"`
	TopSources    []correlate.Count  `json:"top_sources,omitempty"`
	RuleFrequency []correlate.Count  `json:"rule_frequency,omitempty"`
}

func buildReport(records []core.HistoryRecord, views viewFlags) reportView {
	var r reportView
	// empty views still render their headers
	if views.timeline {
		r.Timeline = append([]correlate.Bucket{}, correlate.Timeline(records)...)
	}
	if views.top {
		r.TopSources = append([]correlate.Count{}, correlate.TopSources(records, correlate.TopSourcesLimit)...)
	}
	if views.ruleStats {
		r.RuleFrequency = append([]correlate.Count{}, correlate.RuleFrequency(records)...)
	}
	return r
}

// withSpinner runs fn behind a progress spinner unless output is quiet or JSON
func withSpinner(w io.Writer, suffix string, fn func() error) error {
	var s *spinner.Spinner
	if !outputJSON && !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		s.Suffix = suffix
		s.Start()
	}
	err := fn()
	if s != nil {
		s.Stop()
	}
	return err
}

// newCorrelateCmd creates the 'correlate' subcommand
func newCorrelateCmd() *cobra.Command {
	var (
		full  bool
		views viewFlags
	)

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlate detections into alerts",
		Long: `Apply the burst and repetition rules to the detection log and append new
alerts to alerts.jsonl. By default only detections added since the previous
run can raise alerts; --full re-evaluates the entire history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp()
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			var res *correlate.Result
			err = withSpinner(out, " Correlating detections...", func() error {
				var runErr error
				res, runErr = app.Correlate(cmd.Context(), full)
				return runErr
			})
			if err != nil {
				return err
			}

			report := buildReport(res.History.Records, views)
			if outputJSON {
				return outputAsJSON(out, correlationOutput{
					RunID:      res.RunID,
					Full:       res.Full,
					Watermark:  res.Watermark,
					Records:    len(res.History.Records),
					Skipped:    res.History.Skipped,
					Alerts:     nonNilAlerts(res.Alerts),
					reportView: report,
				})
			}

			renderAlerts(out, res.Alerts)
			if !quiet {
				renderCorrelationSummary(out, res)
			}
			renderReport(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Re-evaluate the entire history, ignoring the watermark")
	views.register(cmd)

	return cmd
}

// correlationOutput is the JSON form of a correlation run
type correlationOutput struct {
	RunID     string        `json:"run_id"`
	Full      bool          `json:"full"`
	Watermark int           `json:"watermark"`
	Records   int           `json:"records"`
	Skipped   int           `json:"skipped"`
	Alerts    []*core.Alert `json:"alerts"`
	reportView
}

func nonNilAlerts(alerts []*core.Alert) []*core.Alert {
	if alerts == nil {
		return []*core.Alert{}
	}
	return alerts
}

// newReportCmd creates the 'report' subcommand
func newReportCmd() *cobra.Command {
	var views viewFlags

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the detection log",
		Long: `Render reporting views over the detection log without raising alerts.
All views are shown when none is selected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !views.any() {
				views = viewFlags{timeline: true, top: true, ruleStats: true}
			}

			out := cmd.OutOrStdout()
			var history *core.History
			err = withSpinner(out, " Loading detection history...", func() error {
				var readErr error
				history, readErr = app.History(cmd.Context())
				return readErr
			})
			if err != nil {
				return err
			}

			report := buildReport(history.Records, views)
			if outputJSON {
				return outputAsJSON(out, report)
			}
			if !quiet {
				infoColor.Fprintf(out, "%d detections (%d unreadable lines skipped)\n", len(history.Records), history.Skipped)
			}
			renderReport(out, report)
			return nil
		},
	}

	views.register(cmd)
	return cmd
}
