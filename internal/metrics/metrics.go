// Package metrics holds the Prometheus collectors shared by pipebot components.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pipebot"

// Upload outcomes recorded by AssetUpload.
const (
	UploadCreated      = "created"
	UploadDeduplicated = "deduplicated"
	UploadSkipped      = "skipped"
	UploadFailed       = "failed"
)

// Metrics tracks webhook, delivery, asset and issue counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	webhookRequests   *prometheus.CounterVec
	webhookDuration   *prometheus.HistogramVec
	signatureFailures *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	assetUploads      *prometheus.CounterVec
	issuesFiled       *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry. Go runtime and
// process collectors are registered alongside.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "requests_total",
				Help:      "Webhook requests by route and response status",
			},
			[]string{"route", "status"},
		),
		webhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "request_duration_seconds",
				Help:      "Webhook handling duration in seconds, including delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		signatureFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "signature_failures_total",
				Help:      "Webhook requests rejected by signature verification",
			},
			[]string{"route"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "deliveries_total",
				Help:      "Chat notification deliveries by channel and result",
			},
			[]string{"channel", "result"},
		),
		assetUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assets",
				Name:      "uploads_total",
				Help:      "Asset uploads by outcome",
			},
			[]string{"outcome"},
		),
		issuesFiled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "issues_total",
				Help:      "Issue submissions by result",
			},
			[]string{"result"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WebhookRequest records a handled webhook request.
func (m *Metrics) WebhookRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.webhookDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SignatureFailure records a rejected signature.
func (m *Metrics) SignatureFailure(route string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(route).Inc()
}

// Delivery records a notification delivery attempt.
func (m *Metrics) Delivery(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

// AssetUpload records an upload outcome (UploadCreated, UploadDeduplicated, ...).
func (m *Metrics) AssetUpload(outcome string) {
	if m == nil {
		return
	}
	m.assetUploads.WithLabelValues(outcome).Inc()
}

// IssueFiled records an issue submission result.
func (m *Metrics) IssueFiled(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.issuesFiled.WithLabelValues(result).Inc()
}
