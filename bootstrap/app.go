package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/correlate"
	"argus/detect"
	"argus/ingest"
	"argus/storage"
	"argus/util/goroutine"
)

// pumpDrainTimeout bounds the wait for the event pump after the detector stops.
// A pump blocked reading stdin cannot observe cancellation.
const pumpDrainTimeout = 2 * time.Second

// Shutdown reasons written to the ops log
const (
	ShutdownEOF         = "eof"
	ShutdownInterrupted = "interrupted"
	ShutdownError       = "error"
)

// ReplayOptions configures an offline replay run
type ReplayOptions struct {
	Path   string
	Format string
	// Rate caps events per second; zero uses ingest.replay_rate
	Rate float64
}

// LiveOptions configures a live run
type LiveOptions struct {
	// Path is the event stream; empty reads stdin
	Path   string
	Format string
	Iface  string
	DryRun bool
}

// App represents the argus application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	RunID  string

	Detections *storage.DetectionLog

	metricsServer *MetricsServer
	cleanup       func()
	closeOnce     sync.Once
}

// NewApp creates a new application instance. The logs directory is created and
// checked before the logger is built so that the ops log can live in it.
func NewApp(cfg *config.Config, logOpts LoggerOptions) (*App, error) {
	logsDir, err := EnsureLogsDir(cfg.Paths.LogsDir)
	if err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}
	cfg.Paths.LogsDir = logsDir

	if logOpts.Level == "" {
		logOpts.Level = cfg.Logging.Level
	}
	if logOpts.OpsPath == "" {
		logOpts.OpsPath = cfg.Paths.OpsPath()
	}
	logger, sugar, cleanup, err := InitLogger(logOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Sugar:   sugar,
		RunID:   uuid.New().String(),
		cleanup: cleanup,
	}

	app.Detections, err = storage.NewDetectionLog(cfg.Paths.DetectionsPath(), sugar)
	if err != nil {
		cleanup()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		app.metricsServer = NewMetricsServer(cfg.Metrics.Addr, sugar)
		app.metricsServer.Start()
	}

	sugar.Debugw("Application initialized",
		"run_id", app.RunID,
		"config", cfg.Source,
		"logs_dir", logsDir)
	return app, nil
}

// RunReplay feeds a recorded event file through the analyzers until EOF or
// cancellation.
func (a *App) RunReplay(ctx context.Context, opts ReplayOptions) (detect.RunStats, error) {
	rate := opts.Rate
	if rate == 0 {
		rate = a.Config.Ingest.ReplayRate
	}
	a.Sugar.Infow("start_replay",
		"component", "runner",
		"run_id", a.RunID,
		"file", opts.Path,
		"format", formatOrDefault(opts.Format),
		"rate", rate)

	stats, err := a.runSource(ctx, opts.Path, opts.Format, rate)
	a.logShutdown(stats, err)
	return stats, err
}

// RunLive runs the pipeline against a live event stream. In dry-run mode no
// events are read and the call idles until ctx is cancelled.
func (a *App) RunLive(ctx context.Context, opts LiveOptions) (detect.RunStats, error) {
	iface := opts.Iface
	if iface == "" {
		iface = a.Config.Capture.Iface
	}
	dryRun := opts.DryRun || a.Config.Capture.DryRun
	a.Sugar.Infow("start_live",
		"component", "runner",
		"run_id", a.RunID,
		"iface", iface,
		"dry_run", dryRun)

	if dryRun {
		<-ctx.Done()
		stats := detect.RunStats{Reason: detect.ReasonInterrupted}
		a.logShutdown(stats, nil)
		return stats, nil
	}

	path := opts.Path
	if path == "" {
		path = "-"
	}
	stats, err := a.runSource(ctx, path, opts.Format, 0)
	a.logShutdown(stats, err)
	return stats, err
}

func (a *App) runSource(ctx context.Context, path, format string, rate float64) (detect.RunStats, error) {
	dlq, err := ingest.OpenDLQ(a.Config.Paths.DeadLetterPath(), a.Sugar)
	if err != nil {
		return detect.RunStats{}, err
	}
	defer dlq.Close()

	src, closer, err := ingest.OpenSource(path, format, dlq, a.Sugar)
	if err != nil {
		return detect.RunStats{}, err
	}
	defer closer.Close()

	return a.pipe(ctx, src, rate)
}

// pipe runs the pump as the single producer and the detector as the single
// consumer of the event channel.
func (a *App) pipe(ctx context.Context, src ingest.Source, rate float64) (detect.RunStats, error) {
	engine, err := detect.NewEngine(DetectOptions(a.Config), a.Detections, a.Sugar)
	if err != nil {
		return detect.RunStats{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pump := ingest.NewPump(src, a.Config.Engine.ChannelBufferSize, rate, a.Sugar)
	pumpErr := make(chan error, 1)
	go func() {
		defer close(pumpErr)
		defer goroutine.Recover("event-pump", a.Sugar)
		pumpErr <- pump.Run(ctx)
	}()

	stats := detect.NewDetector(engine, pump.Events(), a.Sugar).Run(ctx)
	cancel()

	select {
	case err = <-pumpErr:
	case <-time.After(pumpDrainTimeout):
		a.Sugar.Warnw("Event pump did not stop in time", "component", "runner")
		return stats, nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return stats, err
	}
	return stats, nil
}

func (a *App) logShutdown(stats detect.RunStats, err error) {
	reason := stats.Reason
	switch {
	case err != nil:
		reason = ShutdownError
	case reason == "":
		reason = ShutdownEOF
	}
	fields := []any{
		"component", "runner",
		"run_id", a.RunID,
		"reason", reason,
		"events", stats.Events,
		"detections", stats.Detections,
	}
	if err != nil {
		fields = append(fields, "error", err)
	}
	a.Sugar.Infow("shutdown", fields...)
}

// Correlate runs the correlator over the detection history and appends new
// alerts to the alert log. full ignores the stored watermark.
func (a *App) Correlate(ctx context.Context, full bool) (*correlate.Result, error) {
	alerts, err := storage.OpenAlertLog(a.Config.Paths.AlertsPath())
	if err != nil {
		return nil, err
	}
	defer alerts.Close()

	var cursor correlate.CursorStore
	if a.Config.Correlation.Incremental {
		cursor = correlate.NewFileCursor(a.Config.Paths.CursorPath())
	}

	c := correlate.NewCorrelator(CorrelateOptions(a.Config), a.Detections, alerts, cursor, a.Sugar)
	return c.Run(ctx, full)
}

// History reads the detection log for reporting
func (a *App) History(ctx context.Context) (*core.History, error) {
	return a.Detections.ReadAll(ctx)
}

// Close releases the application's resources. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.metricsServer.Shutdown(ctx)
			cancel()
		}
		if err := a.Detections.Close(); err != nil {
			a.Sugar.Errorw("Failed to close detection log", "error", err)
		}
		a.cleanup()
	})
}

// CorrelateOptions maps configuration onto correlator options
func CorrelateOptions(cfg *config.Config) correlate.Options {
	return correlate.Options{
		BurstWindow:     cfg.Correlation.BurstWindow,
		BurstThreshold:  cfg.Correlation.BurstThreshold,
		RepeatThreshold: cfg.Correlation.RepeatThreshold,
	}
}

func formatOrDefault(format string) string {
	if format == "" {
		return ingest.FormatJSONL
	}
	return format
}

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
