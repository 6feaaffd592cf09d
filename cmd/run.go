package cmd

import (
	"github.com/spf13/cobra"

	"argus/bootstrap"
	"argus/ingest"
)

// newRunCmd creates the 'run' subcommand
func newRunCmd() *cobra.Command {
	var (
		events string
		format string
		rate   float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay recorded events through the analyzers",
		Long: `Replay a recorded event file through the analyzers until end of input.
Use "-" to read events from stdin.`,
		Example: `  argus run --events capture.jsonl
  argus run --events capture.msgpack --format msgpack --rate 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !quiet && !outputJSON {
				infoColor.Fprintf(cmd.OutOrStdout(), "Replaying %s\n", events)
			}

			stats, err := app.RunReplay(cmd.Context(), bootstrap.ReplayOptions{
				Path:   events,
				Format: format,
				Rate:   rate,
			})
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), newRunSummary(app, stats))
			}
			if !quiet {
				renderRunStats(cmd.OutOrStdout(), newRunSummary(app, stats))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&events, "events", "", "Event file to replay (- for stdin)")
	cmd.Flags().StringVar(&format, "format", ingest.FormatJSONL, "Event format (jsonl, msgpack)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Maximum events per second (0 uses ingest.replay_rate)")
	_ = cmd.MarkFlagRequired("events")

	return cmd
}

// newLiveCmd creates the 'live' subcommand
func newLiveCmd() *cobra.Command {
	var (
		events string
		format string
		iface  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Analyze a live event stream until interrupted",
		Long: `Analyze a live event stream, read from stdin unless --events is given,
until the stream ends or SIGINT/SIGTERM is received. With --dry-run no events
are read and the process idles until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := initApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !quiet && !outputJSON {
				if iface == "" {
					iface = app.Config.Capture.Iface
				}
				infoColor.Fprintf(cmd.OutOrStdout(), "Listening on %s (Ctrl+C to stop)\n", iface)
			}

			stats, err := app.RunLive(cmd.Context(), bootstrap.LiveOptions{
				Path:   events,
				Format: format,
				Iface:  iface,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), newRunSummary(app, stats))
			}
			if !quiet {
				renderRunStats(cmd.OutOrStdout(), newRunSummary(app, stats))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&events, "events", "", "Event stream to read (default stdin)")
	cmd.Flags().StringVar(&format, "format", ingest.FormatJSONL, "Event format (jsonl, msgpack)")
	cmd.Flags().StringVar(&iface, "iface", "", "Interface label recorded in the ops log (default capture.iface)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not read events; idle until interrupted")

	return cmd
}
