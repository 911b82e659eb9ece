package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all relay metrics
type Metrics struct {
	// Dispatcher
	EventsSent       *prometheus.CounterVec
	SendFailures     *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	DispatchDuration prometheus.Histogram

	// Purger
	EventsPurged  *prometheus.CounterVec
	PurgeFailures *prometheus.CounterVec

	// Jobs
	JobRuns        *prometheus.CounterVec
	StuckRecovered *prometheus.CounterVec
	LockContention *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates all metrics and registers them on reg. A nil reg skips registration.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_events_sent_total",
			Help:      "Total number of external event payloads handed to the transport",
		}, []string{"tenant"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_event_send_failures_total",
			Help:      "Total number of dispatcher batches the transport rejected or timed out",
		}, []string{"tenant"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_event_batch_size",
			Help:      "Number of outbox rows read per dispatcher tick",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_event_dispatch_duration_seconds",
			Help:      "Time spent in one dispatcher tick",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EventsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_events_purged_total",
			Help:      "Total number of sent outbox rows deleted by the purger",
		}, []string{"tenant"}),
		PurgeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_event_purge_failures_total",
			Help:      "Total number of purge ticks that failed to delete",
		}, []string{"tenant"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job ticks by outcome",
		}, []string{"job", "status"}),
		StuckRecovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stuck_job_executions_recovered_total",
			Help:      "Job executions force-failed by stuck-run recovery",
		}, []string{"tenant", "job"}),
		LockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_lock_contention_total",
			Help:      "Ticks skipped because another node held the job lease",
		}, []string{"job"}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsSent,
			m.SendFailures,
			m.BatchSize,
			m.DispatchDuration,
			m.EventsPurged,
			m.PurgeFailures,
			m.JobRuns,
			m.StuckRecovered,
			m.LockContention,
			m.DatabaseOperations,
		)
	}

	return m
}
