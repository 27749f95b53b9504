package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics tracks the periodic expiration sweep.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	batchProcessed *prometheus.CounterVec
}

func NewSchedulerMetrics(registry *prometheus.Registry) *SchedulerMetrics {
	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduler job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduler job failures by job.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vitrina",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration by job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "scheduler",
			Name:      "rows_processed_total",
			Help:      "Rows touched by scheduler jobs.",
		}, []string{"job"}),
	}
	registry.MustRegister(m.jobRuns, m.jobErrors, m.jobDuration, m.batchProcessed)
	return m
}

func (m *SchedulerMetrics) ObserveJob(job string, started time.Time, rows int64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.jobErrors.WithLabelValues(job).Inc()
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if rows > 0 {
		m.batchProcessed.WithLabelValues(job).Add(float64(rows))
	}
}
