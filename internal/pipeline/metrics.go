package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run lifecycle metrics
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ise_enrich_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ise_enrich_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event flow metrics
	eventsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ise_enrich_events_read_total",
			Help: "Total number of events read from the event source",
		},
	)

	eventsMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ise_enrich_events_matched_total",
			Help: "Total number of events matched to an asset record",
		},
	)

	eventsUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ise_enrich_events_unmatched_total",
			Help: "Total number of events with no matching asset record",
		},
	)

	eventsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ise_enrich_events_written_total",
			Help: "Total number of enrichment updates written back",
		},
	)

	writeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ise_enrich_write_errors_total",
			Help: "Total number of failed enrichment writes",
		},
	)

	// Directory snapshot metrics
	snapshotAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ise_enrich_snapshot_assets",
			Help: "Number of asset records in the current directory snapshot",
		},
	)
)
