package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Captain metrics
	ChoresTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_chores_total",
			Help: "Number of chores in the store by status",
		},
		[]string{"status"},
	)

	CrewTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_crew_total",
			Help: "Number of sailors by derived status",
		},
		[]string{"status"},
	)

	SailorUsedCPUs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_sailor_used_cpus",
			Help: "Reserved CPUs per sailor",
		},
		[]string{"sailor"},
	)

	SailorCapacityCPUs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_sailor_capacity_cpus",
			Help: "Advertised CPUs per sailor",
		},
		[]string{"sailor"},
	)

	SailorUsedGPUs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_sailor_used_gpus",
			Help: "Reserved GPUs per sailor",
		},
		[]string{"sailor"},
	)

	SailorCapacityGPUs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flotilla_sailor_capacity_gpus",
			Help: "Advertised GPUs per sailor",
		},
		[]string{"sailor"},
	)

	SubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_submissions_total",
			Help: "Total number of accepted chore submissions",
		},
	)

	AssignmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_assignments_total",
			Help: "Total number of successful chore dispatches",
		},
	)

	AssignmentRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_assignment_rollbacks_total",
			Help: "Total number of reservations rolled back after dispatch failure",
		},
	)

	CancelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotilla_cancel_requests_total",
			Help: "Total number of cancel requests by source",
		},
		[]string{"source"},
	)

	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotilla_reports_total",
			Help: "Total number of sailor reports ingested by status",
		},
		[]string{"status"},
	)

	ChoresPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_chores_purged_total",
			Help: "Total number of terminal chores removed by the TTL purge",
		},
	)

	AssignmentPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flotilla_assignment_pass_duration_seconds",
			Help:    "Time taken by one assignment pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flotilla_reconcile_duration_seconds",
			Help:    "Time taken by one reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotilla_api_requests_total",
			Help: "Total number of API requests by path and status code",
		},
		[]string{"path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flotilla_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Sailor metrics
	RunningChores = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flotilla_running_chores",
			Help: "Number of chores currently supervised by this sailor",
		},
	)

	LaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_launches_total",
			Help: "Total number of chore processes started",
		},
	)

	LaunchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_launch_failures_total",
			Help: "Total number of chore launches that failed to start",
		},
	)

	CancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_cancels_total",
			Help: "Total number of cancel requests handled by this sailor",
		},
	)

	WatcherReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flotilla_watcher_reports_total",
			Help: "Total number of terminal reports posted by watchers",
		},
		[]string{"status"},
	)

	HeartbeatFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flotilla_heartbeat_failures_total",
			Help: "Total number of heartbeat posts that failed",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ChoresTotal)
	prometheus.MustRegister(CrewTotal)
	prometheus.MustRegister(SailorUsedCPUs)
	prometheus.MustRegister(SailorCapacityCPUs)
	prometheus.MustRegister(SailorUsedGPUs)
	prometheus.MustRegister(SailorCapacityGPUs)
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(AssignmentsTotal)
	prometheus.MustRegister(AssignmentRollbacksTotal)
	prometheus.MustRegister(CancelRequestsTotal)
	prometheus.MustRegister(ReportsTotal)
	prometheus.MustRegister(ChoresPurgedTotal)
	prometheus.MustRegister(AssignmentPassDuration)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(RunningChores)
	prometheus.MustRegister(LaunchesTotal)
	prometheus.MustRegister(LaunchFailuresTotal)
	prometheus.MustRegister(CancelsTotal)
	prometheus.MustRegister(WatcherReportsTotal)
	prometheus.MustRegister(HeartbeatFailuresTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
