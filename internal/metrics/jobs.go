package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobTransitionsTotal, jobsFinishedTotal, stageDurationSeconds, approvalWaitSeconds, jobsActive)
}

var (
	jobTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprint_report_job_transitions_total",
			Help: "Job state transitions, labeled by target status.",
		},
		[]string{"to"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprint_report_jobs_finished_total",
			Help: "Jobs that reached a terminal status, labeled by status and error kind.",
		},
		[]string{"status", "kind"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sprint_report_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "success"},
	)

	approvalWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sprint_report_approval_wait_seconds",
			Help:    "Time a job spent parked awaiting approval.",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600, 72 * 3600},
		},
		[]string{"outcome"},
	)

	jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sprint_report_jobs_active",
			Help: "Jobs currently running or parked.",
		},
	)
)

// ObserveTransition records a status change and, for terminal statuses, the outcome.
func ObserveTransition(to string, terminal bool, kind string) {
	jobTransitionsTotal.WithLabelValues(norm(to)).Inc()
	if terminal {
		if kind == "" {
			kind = "none"
		}
		jobsFinishedTotal.WithLabelValues(norm(to), norm(kind)).Inc()
	}
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	stageDurationSeconds.WithLabelValues(norm(stage), label).Observe(d.Seconds())
}

// ObserveApprovalWait records the parked time and how it ended.
func ObserveApprovalWait(outcome string, d time.Duration) {
	approvalWaitSeconds.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

// JobStarted increments the active job gauge.
func JobStarted() { jobsActive.Inc() }

// JobStopped decrements the active job gauge.
func JobStopped() { jobsActive.Dec() }
