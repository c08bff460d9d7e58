// Package metrics exposes Prometheus instrumentation for outbound identity
// provider traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for IdP calls.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// IdPRecorder is what the identity provider client reports to.
type IdPRecorder interface {
	ObserveIdPCall(operation, outcome string, elapsed time.Duration)
	SetBreakerState(name string, state float64)
}

// Collector implements IdPRecorder on a dedicated Prometheus registry.
type Collector struct {
	registry     *prometheus.Registry
	idpRequests  *prometheus.CounterVec
	idpLatency   *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

// NewCollector creates a Collector with its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		idpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calma_idp_requests_total",
			Help: "Outbound identity provider calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		idpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calma_idp_request_duration_seconds",
			Help:    "Latency of outbound identity provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "calma_idp_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}

	reg.MustRegister(
		c.idpRequests,
		c.idpLatency,
		c.breakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveIdPCall records one outbound call.
func (c *Collector) ObserveIdPCall(operation, outcome string, elapsed time.Duration) {
	c.idpRequests.WithLabelValues(operation, outcome).Inc()
	c.idpLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetBreakerState updates the breaker gauge.
func (c *Collector) SetBreakerState(name string, state float64) {
	c.breakerState.WithLabelValues(name).Set(state)
}

// Registry returns the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Nop discards everything. Used where metrics are not wired.
type Nop struct{}

func (Nop) ObserveIdPCall(string, string, time.Duration) {}
func (Nop) SetBreakerState(string, float64)              {}
