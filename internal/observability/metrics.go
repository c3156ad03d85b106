package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	attachmentErrors prometheus.Counter
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Errors rendered by the API, by domain error code.",
		}, []string{"path", "method", "code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "line_notifications_total",
			Help: "LINE push attempts by type and outcome.",
		}, []string{"type", "status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "line_webhook_events_total",
			Help: "LINE webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		attachmentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticket_attachment_failures_total",
			Help: "Attachments that could not be stored.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.notifications,
		m.webhookEvents,
		m.attachmentErrors,
	)
	return m
}

// Registry exposes the registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordNotification counts a push attempt.
func (m *Metrics) RecordNotification(notificationType, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, status).Inc()
}

// RecordWebhookEvent counts a processed, skipped or failed webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordAttachmentFailure counts an attachment that was dropped.
func (m *Metrics) RecordAttachmentFailure() {
	if m == nil {
		return
	}
	m.attachmentErrors.Inc()
}
