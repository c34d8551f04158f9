// Package metrics exposes load test progress as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/cartload/internal/types"
)

const namespace = "cartload"

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Collectors holds the collectors of one process on a dedicated registry.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveUsers     prometheus.Gauge
	CartPoolSize    prometheus.Gauge
}

// New creates and registers the collectors
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests issued against the cart service, by operation and result.",
		}, []string{"operation", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		ActiveUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_users",
			Help:      "Simulated users currently running.",
		}),
		CartPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_pool_size",
			Help:      "Cart ids currently tracked in the shared pool.",
		}),
	}

	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.ActiveUsers,
		c.CartPoolSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe records one request outcome
func (c *Collectors) Observe(o types.Outcome) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(string(o.Operation), ResultLabel(o)).Inc()
	c.RequestDuration.WithLabelValues(string(o.Operation)).Observe(o.Duration.Seconds())
}

// UserStarted increments the active user gauge
func (c *Collectors) UserStarted() {
	if c == nil {
		return
	}
	c.ActiveUsers.Inc()
}

// UserStopped decrements the active user gauge
func (c *Collectors) UserStopped() {
	if c == nil {
		return
	}
	c.ActiveUsers.Dec()
}

// SetPoolSize records the current cart pool size
func (c *Collectors) SetPoolSize(n int) {
	if c == nil {
		return
	}
	c.CartPoolSize.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	})
}

// ResultLabel classifies an outcome for the result label
func ResultLabel(o types.Outcome) string {
	switch {
	case o.Success:
		return ResultSuccess
	case o.IsNetworkError():
		return ResultError
	default:
		return ResultFailure
	}
}
