// Package metrics provides prometheus collectors for service lifecycles and
// the node's admin API.
//
// Every Record* method is safe on a nil *Metrics so services can be built
// without a collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for ServiceOutcomes.
const (
	OutcomeReturned  = "returned"
	OutcomeCancelled = "cancelled"
	OutcomeFault     = "fault"
)

// Metrics holds all the metrics collectors for the node.
type Metrics struct {
	// Registry is the Prometheus registry for all metrics.
	Registry *prometheus.Registry

	// Lifecycle metrics
	ServicesStarted *prometheus.CounterVec
	ServicesRunning *prometheus.GaugeVec
	ServiceOutcomes *prometheus.CounterVec
	CleanupDuration *prometheus.HistogramVec
	CancelDuration  *prometheus.HistogramVec
	CancelTimeouts  *prometheus.CounterVec

	// Status publisher metrics
	StatusPublished *prometheus.CounterVec

	// Admin API metrics
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestInFlight *prometheus.GaugeVec
	NodeUptime      prometheus.Gauge
	NodeLastStarted prometheus.Gauge
}

// Config holds the configuration for metrics.
type Config struct {
	// Namespace is the Prometheus namespace for all metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{Namespace: "p2pnode"}
}

// New creates a new metrics collector with the given configuration.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		Registry: registry,

		ServicesStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "started_total",
				Help:      "Total number of service runs started",
			},
			[]string{"service"},
		),

		ServicesRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "running",
				Help:      "Number of services currently holding their run lock",
			},
			[]string{"service"},
		),

		ServiceOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "outcomes_total",
				Help:      "How service work routines ended",
			},
			[]string{"service", "outcome"},
		),

		CleanupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "cleanup_duration_seconds",
				Help:      "Time from the end of work until cleaned up, children included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		CancelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "cancel_duration_seconds",
				Help:      "Time Cancel spent waiting for cleanup",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		CancelTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "service",
				Name:      "cancel_timeouts_total",
				Help:      "Cancels that gave up after the grace period",
			},
			[]string{"service"},
		),

		StatusPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "status",
				Name:      "published_total",
				Help:      "Status snapshots published, by result",
			},
			[]string{"result"},
		),

		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "admin",
				Name:      "request_total",
				Help:      "Total number of admin requests",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "admin",
				Name:      "request_duration_seconds",
				Help:      "Admin request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RequestInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "admin",
				Name:      "requests_in_flight",
				Help:      "Number of admin requests currently being processed",
			},
			[]string{"method"},
		),

		NodeUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "uptime_seconds",
				Help:      "Node uptime in seconds",
			},
		),

		NodeLastStarted: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "last_started_timestamp",
				Help:      "Timestamp when the node was last started",
			},
		),
	}

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordUptime starts a goroutine that updates the node uptime metric until
// done is closed.
func (m *Metrics) RecordUptime(done <-chan struct{}) {
	if m == nil {
		return
	}
	startTime := time.Now()
	m.NodeLastStarted.Set(float64(startTime.Unix()))
	ticker := time.NewTicker(1 * time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.NodeUptime.Set(time.Since(startTime).Seconds())
			case <-done:
				return
			}
		}
	}()
}

// RecordStart records a service acquiring its run lock.
func (m *Metrics) RecordStart(service string) {
	if m == nil {
		return
	}
	m.ServicesStarted.WithLabelValues(service).Inc()
	m.ServicesRunning.WithLabelValues(service).Inc()
}

// RecordFinish records how a service's work routine ended.
func (m *Metrics) RecordFinish(service, outcome string) {
	if m == nil {
		return
	}
	m.ServicesRunning.WithLabelValues(service).Dec()
	m.ServiceOutcomes.WithLabelValues(service, outcome).Inc()
}

// RecordCleanup records the duration of a service's cleanup fan-in.
func (m *Metrics) RecordCleanup(service string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CleanupDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCancel records a Cancel call and whether it ran out of grace.
func (m *Metrics) RecordCancel(service string, duration time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.CancelDuration.WithLabelValues(service).Observe(duration.Seconds())
	if timedOut {
		m.CancelTimeouts.WithLabelValues(service).Inc()
	}
}

// RecordPublish records one status publish attempt.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StatusPublished.WithLabelValues(result).Inc()
}

// RecordRequest records metrics for an admin HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
