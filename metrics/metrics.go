// Package metrics exposes onboarding counters and latencies to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the onboarding collectors on a dedicated registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	results        *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	provisioned    *prometheus.CounterVec
	deletions      *prometheus.CounterVec
	eventsReceived prometheus.Counter
}

// NewMetrics creates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of processed production records by final state",
		}, []string{"state", "failed_at", "retryable"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "record_duration_seconds",
			Help:      "Duration of onboarding a single production record",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		provisioned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_provisioned_total",
			Help:      "Total number of provisioned identities",
		}, []string{"created"}), // created: true for new things, false for reused ones
		deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_deletions_total",
			Help:      "Total number of source record deletions after onboarding",
		}, []string{"result"}), // result: success, failure
		eventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of record notifications received over HTTP",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordResult records the final state of one onboarding run.
func (m *Metrics) RecordResult(state, failedAt string, retryable bool, duration time.Duration) {
	if m == nil {
		return
	}
	r := "false"
	if retryable {
		r = "true"
	}
	m.results.WithLabelValues(state, failedAt, r).Inc()
	m.duration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordProvisioned records a successfully provisioned identity.
func (m *Metrics) RecordProvisioned(createdIdentity bool) {
	if m == nil {
		return
	}
	created := "false"
	if createdIdentity {
		created = "true"
	}
	m.provisioned.WithLabelValues(created).Inc()
}

// RecordDeletion records the outcome of deleting a source record.
func (m *Metrics) RecordDeletion(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.deletions.WithLabelValues(result).Inc()
}

// RecordEvents counts records received in a notification.
func (m *Metrics) RecordEvents(n int) {
	if m == nil {
		return
	}
	m.eventsReceived.Add(float64(n))
}

// MetricsServer serves the registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for m listening on addr.
func New(m *Metrics, addr string) (*MetricsServer, error) {
	if m == nil {
		return nil, errors.New("metrics are required")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the HTTP handler serving the metrics.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
