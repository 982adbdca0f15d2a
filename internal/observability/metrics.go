package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	pipelineRunsTotal     *prometheus.CounterVec
	pipelineStageSeconds  *prometheus.HistogramVec
	pipelineTransitions   *prometheus.CounterVec
	outboundFailuresTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the submission pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		pipelineRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "submission",
			Name:      "runs_total",
			Help:      "Submission pipeline runs by assessment type and terminal outcome.",
		}, []string{"assessment_type", "outcome"})

		pipelineStageSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gema",
			Subsystem: "submission",
			Name:      "stage_duration_seconds",
			Help:      "Duration of the grading and persistence stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"assessment_type", "stage"})

		pipelineTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "submission",
			Name:      "state_transitions_total",
			Help:      "Submission pipeline state transitions.",
		}, []string{"from", "to"})

		outboundFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gema",
			Subsystem: "outbound",
			Name:      "failures_total",
			Help:      "Failed calls to the grading and persistence collaborators.",
		}, []string{"collaborator", "reason"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			pipelineRunsTotal,
			pipelineStageSeconds,
			pipelineTransitions,
			outboundFailuresTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// PipelineRuns exposes the counter of terminal pipeline outcomes.
func PipelineRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineRunsTotal
}

// PipelineStageLatency exposes the per-stage latency histogram.
func PipelineStageLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return pipelineStageSeconds
}

// PipelineTransitions exposes the state transition counter.
func PipelineTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineTransitions
}

// OutboundFailures exposes the counter of failed collaborator calls.
func OutboundFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return outboundFailuresTotal
}
