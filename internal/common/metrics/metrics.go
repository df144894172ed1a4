// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// Control-plane query resolution.

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_query_resolutions_total",
			Help: "Control-plane query resolutions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_query_fetch_attempts_total",
			Help: "Status fetches issued while polling control-plane queries",
		},
		[]string{"kind", "result"},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_query_resolution_duration_seconds",
			Help:    "Wall-clock time from submission to terminal outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"kind", "outcome"},
	)

	DiscountCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_discount_cache_requests_total",
			Help: "Discount cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)
