package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-wide metrics every component shares.
// Component-specific metrics are registered separately through the Registry.
type Metrics struct {
	// Service metrics
	ServiceStatus      *prometheus.GaugeVec
	MessagesReceived   *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Inference and alerting metrics
	InferenceDuration    *prometheus.HistogramVec
	AlertsGenerated      *prometheus.CounterVec
	WebsocketConnections prometheus.Gauge
	RateLimitDenials     *prometheus.CounterVec
	ResultCacheEvents    *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received",
			},
			[]string{"service", "type"},
		),

		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "messages",
				Name:      "processed_total",
				Help:      "Total number of messages processed",
			},
			[]string{"service", "type", "status"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
			[]string{"service", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cradle",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Message processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cradle",
				Subsystem: "ml",
				Name:      "inference_duration_seconds",
				Help:      "End-to-end inference duration per modality in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"modality"},
		),

		AlertsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "alerts",
				Name:      "generated_total",
				Help:      "Total number of alerts generated",
			},
			[]string{"type", "severity"},
		),

		WebsocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "websocket",
				Name:      "active_connections",
				Help:      "Number of currently connected WebSocket clients",
			},
		),

		RateLimitDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "rate_limit",
				Name:      "denials_total",
				Help:      "Total number of inference requests denied by the rate gate",
			},
			[]string{"modality"},
		),

		ResultCacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "result_cache",
				Name:      "events_total",
				Help:      "Result cache lookups by outcome (hit, miss, error)",
			},
			[]string{"modality", "outcome"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cradle",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cradle",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(service, messageType string) {
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

// RecordMessageProcessed increments processed message counter
func (c *Metrics) RecordMessageProcessed(service, messageType, status string) {
	c.MessagesProcessed.WithLabelValues(service, messageType, status).Inc()
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(service, subject string) {
	c.MessagesPublished.WithLabelValues(service, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(value)
}

// RecordInferenceDuration records how long one inference took for a modality
func (c *Metrics) RecordInferenceDuration(modality string, duration time.Duration) {
	c.InferenceDuration.WithLabelValues(modality).Observe(duration.Seconds())
}

// RecordAlertGenerated increments the alert counter for a type and severity
func (c *Metrics) RecordAlertGenerated(alertType, severity string) {
	c.AlertsGenerated.WithLabelValues(alertType, severity).Inc()
}

// WebsocketConnected increments the active connection gauge
func (c *Metrics) WebsocketConnected() {
	c.WebsocketConnections.Inc()
}

// WebsocketDisconnected decrements the active connection gauge
func (c *Metrics) WebsocketDisconnected() {
	c.WebsocketConnections.Dec()
}

// RecordRateLimitDenial increments the rate gate denial counter
func (c *Metrics) RecordRateLimitDenial(modality string) {
	c.RateLimitDenials.WithLabelValues(modality).Inc()
}

// RecordCacheEvent records a result cache lookup outcome
func (c *Metrics) RecordCacheEvent(modality, outcome string) {
	c.ResultCacheEvents.WithLabelValues(modality, outcome).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
