package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all daemon metrics.
type Registry struct {
	reg *prometheus.Registry

	// Pipeline
	Cycles           *prometheus.CounterVec
	BatchConnections prometheus.Gauge
	Zones            *prometheus.GaugeVec
	MonitorEvents    prometheus.Counter

	// Backend
	BackendCommands prometheus.Counter
	BackendErrors   *prometheus.CounterVec
	LastApply       prometheus.Gauge
	ApplyDuration   prometheus.Histogram
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry creates a registry backed by its own prometheus.Registry, so
// tests can create as many as they like.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	r := &Registry{reg: reg}

	r.Cycles = f.NewCounterVec(prometheus.CounterOpts{
		Name: "splitdns_cycles_total",
		Help: "Pipeline cycles by result",
	}, []string{"result"})

	r.BatchConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "splitdns_batch_connections",
		Help: "Connections resolved in the most recent batch",
	})

	r.Zones = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "splitdns_zones",
		Help: "Derived zones by kind",
	}, []string{"kind"})

	r.MonitorEvents = f.NewCounter(prometheus.CounterOpts{
		Name: "splitdns_monitor_events_total",
		Help: "Batches committed by the change monitor",
	})

	r.BackendCommands = f.NewCounter(prometheus.CounterOpts{
		Name: "splitdns_backend_commands_total",
		Help: "Commands sent to the resolver control socket",
	})

	r.BackendErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "splitdns_backend_errors_total",
		Help: "Resolver control socket failures by operation",
	}, []string{"op"})

	r.LastApply = f.NewGauge(prometheus.GaugeOpts{
		Name: "splitdns_last_apply_timestamp",
		Help: "Unix timestamp of the last successful rule sync",
	})

	r.ApplyDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "splitdns_apply_duration_seconds",
		Help:    "Time spent syncing rules to the resolver",
		Buckets: prometheus.DefBuckets,
	})

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordCycle records the result of one pipeline cycle.
func (r *Registry) RecordCycle(result string) {
	r.Cycles.WithLabelValues(result).Inc()
}

// RecordZones records the size of the derived zone set.
func (r *Registry) RecordZones(forward, reverse int) {
	r.Zones.WithLabelValues("forward").Set(float64(forward))
	r.Zones.WithLabelValues("reverse").Set(float64(reverse))
}

// RecordApply records a successful sync that sent n commands.
func (r *Registry) RecordApply(n int, took time.Duration, at time.Time) {
	r.BackendCommands.Add(float64(n))
	r.ApplyDuration.Observe(took.Seconds())
	r.LastApply.Set(float64(at.Unix()))
}

// RecordBackendError records a failed control socket operation.
func (r *Registry) RecordBackendError(op string) {
	if op == "" {
		op = "unknown"
	}
	r.BackendErrors.WithLabelValues(strings.ToLower(op)).Inc()
}
