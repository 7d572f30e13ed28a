package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbeAttempts counts provider endpoint attempts by endpoint and outcome.
	ProbeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptvcatalog_probe_attempts_total",
		Help: "Total number of provider endpoint probe attempts",
	}, []string{"endpoint", "outcome"})

	// ProbeDuration tracks how long each endpoint attempt took.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iptvcatalog_probe_duration_seconds",
		Help:    "Duration of provider endpoint probe attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// HTTPRetries counts retried provider requests by status code.
	HTTPRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptvcatalog_fetch_retries_total",
		Help: "Total number of retried provider requests",
	}, []string{"status"})

	// RecordsNormalized counts raw records that became channels.
	RecordsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptvcatalog_records_normalized_total",
		Help: "Total number of raw records normalized into channels",
	})

	// RecordsDropped counts raw records dropped for a missing field.
	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptvcatalog_records_dropped_total",
		Help: "Total number of raw records dropped during normalization",
	}, []string{"field"})

	// Syncs counts finished syncs by dialect and result.
	Syncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptvcatalog_syncs_total",
		Help: "Total number of catalog syncs",
	}, []string{"dialect", "result"})

	// SyncDuration tracks end-to-end sync latency.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iptvcatalog_sync_duration_seconds",
		Help:    "Duration of catalog syncs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// CatalogChannels is the channel count of the last commit per playlist.
	CatalogChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "iptvcatalog_catalog_channels",
		Help: "Number of channels in the last committed catalog",
	}, []string{"playlist_id"})

	// SyncJobsQueued counts sync jobs pushed onto the queue.
	SyncJobsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptvcatalog_sync_jobs_queued_total",
		Help: "Total number of sync jobs enqueued",
	})
)

// ObserveProbe records one endpoint attempt.
func ObserveProbe(endpoint, outcome string, d time.Duration) {
	ProbeAttempts.WithLabelValues(endpoint, outcome).Inc()
	ProbeDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveSync records a finished sync. result is "ok" or "error".
func ObserveSync(dialect string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if dialect == "" {
		dialect = "none"
	}
	Syncs.WithLabelValues(dialect, result).Inc()
	SyncDuration.Observe(d.Seconds())
}
