package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credcheck_workers_total",
			Help: "Total number of registered workers by liveness status",
		},
		[]string{"status"},
	)

	WorkerActiveTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credcheck_worker_active_tasks",
			Help: "Current number of tasks a worker is processing",
		},
		[]string{"worker_id"},
	)

	// Coordinator metrics
	CoordinatorIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "credcheck_coordinator_is_leader",
			Help: "Whether this coordinator instance holds the failover lease (1 = leader, 0 = standby)",
		},
	)

	BatchesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credcheck_batches_total",
			Help: "Total number of batches by lifecycle state",
		},
		[]string{"state"},
	)

	ZombieTasksRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credcheck_zombie_tasks_requeued_total",
			Help: "Total number of tasks requeued by zombie recovery",
		},
	)

	ZombieTasksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credcheck_zombie_tasks_dropped_total",
			Help: "Total number of tasks abandoned after exceeding the retry limit",
		},
	)

	// Task outcome metrics
	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credcheck_tasks_processed_total",
			Help: "Total number of tasks processed by outcome status",
		},
		[]string{"status"},
	)

	TaskProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credcheck_task_processing_duration_seconds",
			Help:    "Time taken to run the protocol driver for one task in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credcheck_tasks_queued_total",
			Help: "Total number of tasks enqueued across all batches",
		},
	)

	TasksDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credcheck_tasks_deduped_total",
			Help: "Total number of credentials skipped because a cached result already existed",
		},
	)

	// Proxy pool metrics
	ProxyAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credcheck_proxy_assignments_total",
			Help: "Total number of proxy assignments by proxy_id and whether it was a direct fallback",
		},
		[]string{"proxy_id", "direct"},
	)

	ProxiesHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "credcheck_proxies_healthy",
			Help: "Current number of healthy proxies in the pool",
		},
	)

	// PoW metrics
	PoWComputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credcheck_pow_compute_duration_seconds",
			Help:    "Time taken to obtain a cres for a challenge by source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"}, // cache, remote, local, random
	)

	PoWOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credcheck_pow_outcomes_total",
			Help: "Total number of PoW solves by source",
		},
		[]string{"source"},
	)

	// Batch operation metrics
	BatchEnqueueDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credcheck_batch_enqueue_duration_seconds",
			Help:    "Time taken to enqueue a batch of credentials in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchProgressAggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "credcheck_batch_progress_aggregation_duration_seconds",
			Help:    "Time taken for one progress aggregation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerActiveTasks)
	prometheus.MustRegister(CoordinatorIsLeader)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(ZombieTasksRequeued)
	prometheus.MustRegister(ZombieTasksDropped)
	prometheus.MustRegister(TasksProcessedTotal)
	prometheus.MustRegister(TaskProcessingDuration)
	prometheus.MustRegister(TasksQueuedTotal)
	prometheus.MustRegister(TasksDedupedTotal)
	prometheus.MustRegister(ProxyAssignmentsTotal)
	prometheus.MustRegister(ProxiesHealthy)
	prometheus.MustRegister(PoWComputeDuration)
	prometheus.MustRegister(PoWOutcomesTotal)
	prometheus.MustRegister(BatchEnqueueDuration)
	prometheus.MustRegister(BatchProgressAggregationDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
