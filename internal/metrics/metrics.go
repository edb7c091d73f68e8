// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the service.
type Registry struct {
	reg *prometheus.Registry

	renders  *prometheus.CounterVec
	attempts *prometheus.CounterVec
	inFlight prometheus.Gauge
	duration prometheus.Histogram
	warmupOK prometheus.Gauge
}

// New returns a Registry with all collectors registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.renders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "formpdf_renders_total",
		Help: "Total render requests by outcome.",
	}, []string{"outcome"})

	r.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "formpdf_conversion_attempts_total",
		Help: "Conversion strategy attempts by strategy, filter and outcome.",
	}, []string{"strategy", "filter", "outcome"})

	r.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "formpdf_renders_in_flight",
		Help: "Current number of renders in progress.",
	})

	r.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "formpdf_render_duration_seconds",
		Help:    "Render duration in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	r.warmupOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "formpdf_warmup_ready",
		Help: "Whether warmup completed successfully (1) or not (0).",
	})

	r.reg.MustRegister(r.renders, r.attempts, r.inFlight, r.duration, r.warmupOK)

	// Pre-create the outcome series so they export as 0 before first use.
	for _, outcome := range []string{"success", "timeout", "failed"} {
		r.renders.WithLabelValues(outcome)
	}
	return r
}

// Handler serves the Prometheus exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// IncSuccess increments the successful render counter.
func (r *Registry) IncSuccess() { r.renders.WithLabelValues("success").Inc() }

// IncTimeout increments the timed-out render counter.
func (r *Registry) IncTimeout() { r.renders.WithLabelValues("timeout").Inc() }

// IncFailed increments the failed render counter.
func (r *Registry) IncFailed() { r.renders.WithLabelValues("failed").Inc() }

// IncInFlight increments the in-flight render gauge.
func (r *Registry) IncInFlight() { r.inFlight.Inc() }

// DecInFlight decrements the in-flight render gauge.
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveDuration records a render duration in seconds.
func (r *Registry) ObserveDuration(seconds float64) { r.duration.Observe(seconds) }

// ObserveAttempt records one conversion strategy attempt.
func (r *Registry) ObserveAttempt(strategy, filter, outcome string) {
	r.attempts.WithLabelValues(strategy, filter, outcome).Inc()
}

// SetWarmupReady records the warmup outcome.
func (r *Registry) SetWarmupReady(ok bool) {
	if ok {
		r.warmupOK.Set(1)
	} else {
		r.warmupOK.Set(0)
	}
}
