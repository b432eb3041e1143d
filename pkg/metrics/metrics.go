package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache write metrics
	MessagesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcache_messages_saved_total",
			Help: "Total messages upserted into the cache",
		},
	)

	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcache_messages_skipped_total",
			Help: "Total messages skipped while saving",
		},
		[]string{"reason"}, // "malformed"
	)

	MessagesTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcache_messages_trimmed_total",
			Help: "Total messages evicted by the per-room limit",
		},
	)

	MessagesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcache_messages_swept_total",
			Help: "Total messages removed by the retention sweep",
		},
	)

	// Cache read metrics
	MessagesLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcache_messages_loaded_total",
			Help: "Total messages returned from the cache",
		},
	)

	CorruptRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcache_corrupt_rows_total",
			Help: "Total cached rows dropped because their JSON didn't parse",
		},
	)

	// Infrastructure metrics
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcache_operation_duration_seconds",
			Help:    "Cache operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"operation"},
	)

	Enabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcache_enabled",
			Help: "1 if the cache storage engine is available",
		},
	)

	// Ingest metrics
	FilesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcache_ingest_files_total",
			Help: "Total files handled by the ingest watcher",
		},
		[]string{"result"}, // "saved", "ignored", "failed"
	)
)
