// Package metrics exposes chat counters in Prometheus format. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dfworx/chat-backend/pkg/apperror"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	events      *prometheus.CounterVec
	postLookups *prometheus.CounterVec
	exportJobs  *prometheus.CounterVec
}

// New registers the chat counters plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "operations_total",
			Help:      "Chat operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "events_published_total",
			Help:      "Realtime events published by type and outcome.",
		}, []string{"type", "outcome"}),
		postLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "post_lookups_total",
			Help:      "External post resolutions by result (hit, miss, cached, unavailable).",
		}, []string{"result"}),
		exportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "export_jobs_total",
			Help:      "Export jobs processed by format and outcome.",
		}, []string{"format", "outcome"}),
	}
	reg.MustRegister(m.operations, m.events, m.postLookups, m.exportJobs,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Outcome classifies an operation error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperror.IsValidation(err):
		return "validation"
	case apperror.IsNotFound(err):
		return "not_found"
	case apperror.IsConflict(err):
		return "conflict"
	case apperror.IsTenantMismatch(err):
		return "tenant_mismatch"
	}
	return "error"
}

// Operation counts one chat operation.
func (m *Metrics) Operation(name string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, Outcome(err)).Inc()
}

// Event counts one realtime publish attempt.
func (m *Metrics) Event(eventType string, err error) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, Outcome(err)).Inc()
}

// PostLookup counts one post resolution.
func (m *Metrics) PostLookup(result string) {
	if m == nil {
		return
	}
	m.postLookups.WithLabelValues(result).Inc()
}

// ExportJob counts one processed export job.
func (m *Metrics) ExportJob(format string, err error) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(format, Outcome(err)).Inc()
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
