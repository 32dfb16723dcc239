// Package metrics exposes Prometheus counters for probes, identifications and print jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escpos"

// Metrics holds the collectors and the registry they are registered in
type Metrics struct {
	registry        *prometheus.Registry
	probes          *prometheus.CounterVec
	identifications *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobBytes        prometheus.Counter
	deviceEvents    *prometheus.CounterVec
}

// New creates the collectors in a fresh registry, together with the Go runtime collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Network probe attempts by result",
			},
			[]string{"result"},
		),
		identifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identifications_total",
				Help:      "Identification handshakes by port kind and status",
			},
			[]string{"kind", "status"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Print jobs by port kind and result",
			},
			[]string{"kind", "result"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Time from job submission to completion",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		jobBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_bytes_total",
			Help:      "Command bytes written by successful jobs",
		}),
		deviceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usb_events_total",
				Help:      "USB adapter events by type",
			},
			[]string{"event"},
		),
	}
	m.registry.MustRegister(
		m.probes, m.identifications, m.jobs, m.jobDuration, m.jobBytes, m.deviceEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Probe counts one network probe
func (m *Metrics) Probe(open bool) {
	if m == nil {
		return
	}
	result := "closed"
	if open {
		result = "open"
	}
	m.probes.WithLabelValues(result).Inc()
}

// Identification counts one handshake
func (m *Metrics) Identification(kind, status string) {
	if m == nil {
		return
	}
	m.identifications.WithLabelValues(kind, status).Inc()
}

// Job records a finished print job
func (m *Metrics) Job(kind string, ok bool, bytes int, d time.Duration) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
		m.jobBytes.Add(float64(bytes))
	}
	m.jobs.WithLabelValues(kind, result).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// DeviceEvent counts one USB adapter event
func (m *Metrics) DeviceEvent(event string) {
	if m == nil {
		return
	}
	m.deviceEvents.WithLabelValues(event).Inc()
}
