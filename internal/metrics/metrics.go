// Package metrics exposes Prometheus collectors for streams, pollers and the view server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotbook"

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StreamPushes   *prometheus.CounterVec
	StalePushes    *prometheus.CounterVec
	PollRuns       *prometheus.CounterVec
	PollErrors     *prometheus.CounterVec
	Toasts         *prometheus.CounterVec
	ViewClients    prometheus.Gauge
	DroppedClient  prometheus.Counter
	SDKRequests    *prometheus.CounterVec
	SDKRequestTime *prometheus.HistogramVec
}

// New creates and registers the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StreamPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_pushes_total",
			Help:      "Subscription pushes accepted, by stream",
		}, []string{"stream"}),
		StalePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_stale_pushes_total",
			Help:      "Subscription pushes discarded after a market switch, by stream",
		}, []string{"stream"}),
		PollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_runs_total",
			Help:      "Interval updater runs, by poller",
		}, []string{"poller"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Interval updater failures, by poller",
		}, []string{"poller"}),
		Toasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_total",
			Help:      "Notifications raised, by type",
		}, []string{"type"}),
		ViewClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_clients",
			Help:      "Connected view-server websocket clients",
		}),
		DroppedClient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_client_messages_dropped_total",
			Help:      "Client messages dropped by the rate limiter",
		}),
		SDKRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sdk_requests_total",
			Help:      "Requests to the indexer, node and analytics APIs, by operation and result",
		}, []string{"operation", "result"}),
		SDKRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sdk_request_duration_seconds",
			Help:      "Request latency to the indexer, node and analytics APIs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.StreamPushes,
		m.StalePushes,
		m.PollRuns,
		m.PollErrors,
		m.Toasts,
		m.ViewClients,
		m.DroppedClient,
		m.SDKRequests,
		m.SDKRequestTime,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordPush(stream string) {
	if m == nil {
		return
	}
	m.StreamPushes.WithLabelValues(stream).Inc()
}

func (m *Metrics) RecordStalePush(stream string) {
	if m == nil {
		return
	}
	m.StalePushes.WithLabelValues(stream).Inc()
}

// RecordPoll counts a poller run and whether it failed
func (m *Metrics) RecordPoll(poller string, err error) {
	if m == nil {
		return
	}
	m.PollRuns.WithLabelValues(poller).Inc()
	if err != nil {
		m.PollErrors.WithLabelValues(poller).Inc()
	}
}

func (m *Metrics) RecordToast(kind string) {
	if m == nil {
		return
	}
	m.Toasts.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetViewClients(n int) {
	if m == nil {
		return
	}
	m.ViewClients.Set(float64(n))
}

func (m *Metrics) RecordDroppedClientMessage() {
	if m == nil {
		return
	}
	m.DroppedClient.Inc()
}

// RecordRequest counts an outbound API request and observes its latency
func (m *Metrics) RecordRequest(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SDKRequests.WithLabelValues(operation, result).Inc()
	m.SDKRequestTime.WithLabelValues(operation).Observe(seconds)
}
