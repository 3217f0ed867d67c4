// Package metrics exposes Prometheus instrumentation for analysis runs,
// stage transitions, recommendation outcomes and inference latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toothsense-analysis-server/internal/domain"
)

// Outcome labels for analysis and recommendation counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCached  = "cached"
	OutcomeSkipped = "skipped"
)

// Recorder owns a private registry so several recorders can coexist in one
// process (tests, CLI). All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	stages           *prometheus.CounterVec
	recommendations  *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

// NewRecorder registers every collector under namespace.
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis runs by image kind, outcome and failure code.",
		}, []string{"kind", "outcome", "code"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of analysis runs including pacing.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"kind"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Processing stage transitions emitted.",
		}, []string{"stage"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendation augmentation attempts by outcome.",
		}, []string{"outcome"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_request_duration_seconds",
			Help:      "Latency of inference backend calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "code"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per collaborator (0 closed, 1 half-open, 2 open).",
		}, []string{"collaborator"}),
	}

	r.registry.MustRegister(
		r.analyses,
		r.analysisDuration,
		r.stages,
		r.recommendations,
		r.inferenceLatency,
		r.breakerState,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveAnalysis records one finished run. code is empty on success.
func (r *Recorder) ObserveAnalysis(kind domain.ImageKind, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := OutcomeFailure
	if code == "" {
		outcome, code = OutcomeSuccess, "none"
	}
	r.analyses.WithLabelValues(string(kind), outcome, code).Inc()
	r.analysisDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveStage counts a stage transition.
func (r *Recorder) ObserveStage(stage domain.ProcessingStage) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(string(stage)).Inc()
}

// ObserveRecommendation counts an augmentation outcome.
func (r *Recorder) ObserveRecommendation(outcome string) {
	if r == nil {
		return
	}
	r.recommendations.WithLabelValues(outcome).Inc()
}

// ObserveInference records a backend call latency. code is empty on success.
func (r *Recorder) ObserveInference(kind domain.ImageKind, code string, elapsed time.Duration) {
	if r == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	r.inferenceLatency.WithLabelValues(string(kind), code).Observe(elapsed.Seconds())
}

// SetBreakerState publishes a collaborator's circuit breaker state.
func (r *Recorder) SetBreakerState(collaborator string, state float64) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(collaborator).Set(state)
}
