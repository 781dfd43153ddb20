package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsEnriched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_enriched_total",
			Help: "Total number of alerts enriched",
		},
		[]string{"verdict"},
	)

	IndicatorsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_indicators_extracted_total",
			Help: "Total number of indicators extracted from alerts",
		},
		[]string{"kind"},
	)

	ProviderLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_provider_lookups_total",
			Help: "Total number of threat intel provider lookups",
		},
		[]string{"provider", "status"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_alert_enrichment_duration_seconds",
			Help:    "Time taken to enrich a single alert",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchAlertsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_batch_alerts_fetched_total",
			Help: "Total number of raw alerts fetched from the alert source",
		},
	)

	BatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_batch_alert_failures_total",
			Help: "Total number of alerts excluded from a batch due to enrichment failure",
		},
	)

	StoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_store_failures_total",
			Help: "Total number of enriched alert persistence failures",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_verdict_cache_hits_total",
			Help: "Total number of verdict cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_verdict_cache_misses_total",
			Help: "Total number of verdict cache misses",
		},
		[]string{"backend"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_verdict_cache_errors_total",
			Help: "Total number of verdict cache errors",
		},
		[]string{"backend", "operation"},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_worker_pool_active_workers",
			Help: "Number of active workers in a pool (-1 indicates unhealthy shutdown)",
		},
		[]string{"pool_type"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "argus_worker_pool_queue_size",
			Help: "Current number of queued tasks in a pool",
		},
		[]string{"pool_type"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_worker_pool_tasks_processed_total",
			Help: "Total number of tasks processed by a pool",
		},
		[]string{"pool_type"},
	)
)
