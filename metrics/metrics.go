package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_processed_total",
			Help: "Total number of events evaluated by the detection engine",
		},
		[]string{"proto"},
	)

	DetectionsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_detections_total",
			Help: "Total number of detections emitted",
		},
		[]string{"rule_id"},
	)

	DetectorFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_detector_faults_total",
			Help: "Total number of recovered analyzer faults",
		},
		[]string{"rule_id"},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_event_processing_duration_seconds",
			Help:    "Time taken to run all enabled analyzers on one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts generated by the correlator",
		},
		[]string{"alert_id"},
	)

	HistoryLinesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_history_lines_skipped_total",
			Help: "Total number of malformed detection log lines skipped",
		},
	)

	DeadLetterEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_dead_letter_events_total",
			Help: "Total number of malformed input events sent to the dead-letter file",
		},
		[]string{"reason"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_sink_errors_total",
			Help: "Total number of records that could not be appended to a sink",
		},
		[]string{"sink"},
	)
)
