package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(upstreamCallsTotal, upstreamRetriesTotal, upstreamLatencyMs, meetingsDegradedTotal, synthesisAttemptsTotal)
}

var (
	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprint_report_upstream_calls_total",
			Help: "Upstream calls by source, operation and outcome (ok/transient/permanent).",
		},
		[]string{"source", "op", "outcome"},
	)

	upstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprint_report_upstream_retries_total",
			Help: "Retries scheduled after transient upstream failures.",
		},
		[]string{"source", "op"},
	)

	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sprint_report_upstream_latency_ms",
			Help:    "Upstream call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"source", "op"},
	)

	meetingsDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sprint_report_meetings_degraded_total",
			Help: "Meetings included without notes after enrichment failed.",
		},
	)

	synthesisAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sprint_report_synthesis_attempts_total",
			Help: "Synthesis passes by provider and result (valid/invalid).",
		},
		[]string{"provider", "result"},
	)
)

// ObserveUpstreamCall records one attempt against an upstream.
func ObserveUpstreamCall(source, op, outcome string, d time.Duration) {
	upstreamCallsTotal.WithLabelValues(norm(source), norm(op), norm(outcome)).Inc()
	upstreamLatencyMs.WithLabelValues(norm(source), norm(op)).Observe(float64(d.Milliseconds()))
}

// IncRetry records a scheduled retry.
func IncRetry(source, op string) {
	upstreamRetriesTotal.WithLabelValues(norm(source), norm(op)).Inc()
}

// AddDegradedMeetings records meetings that could not be enriched.
func AddDegradedMeetings(n int) {
	if n > 0 {
		meetingsDegradedTotal.Add(float64(n))
	}
}

// IncSynthesisAttempt records a synthesis pass and whether it validated.
func IncSynthesisAttempt(provider string, valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	synthesisAttemptsTotal.WithLabelValues(norm(provider), result).Inc()
}
