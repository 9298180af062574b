// Package alert fans one raised alert out to everything that consumes
// it: the durable store, the alert counter, connected realtime
// clients, the push-notification provider and the telemetry sink.
// Legs are isolated; a failing leg logs and the rest still run.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
	"github.com/YuvDwi/Cradle/pkg/retry"
	"github.com/YuvDwi/Cradle/telemetry"
)

const serviceName = "alert"

// AlertWriter is the slice of the alert store the dispatcher needs.
// Satisfied by store.AlertStore implementations.
type AlertWriter interface {
	CreateAlert(ctx context.Context, alert *message.AlertEvent) error
}

// Broadcaster pushes a payload to every connected realtime client and
// reports how many received it.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) int
}

// Notification is one push message for an external provider.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers push notifications. Implementations wrap whatever
// provider the deployment uses; delivery failures surface as errors
// and are retried by the dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of a provider.
// Stands in during development and when push delivery is disabled but
// the content should still be visible.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, notification Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Push notification",
		"title", notification.Title,
		"body", notification.Body)
	return nil
}

// Deps are the fan-out legs. Every leg is optional: a nil Store skips
// persistence, a nil Broadcast skips client delivery, a nil Notifier
// skips push, a nil Recorder records nothing.
type Deps struct {
	Store     AlertWriter
	Broadcast Broadcaster
	Notifier  Notifier
	Recorder  telemetry.Recorder
}

// Dispatcher delivers each alert to all configured legs.
type Dispatcher struct {
	store     AlertWriter
	broadcast Broadcaster
	notifier  Notifier
	recorder  telemetry.Recorder

	logger      *slog.Logger
	metrics     *metric.Metrics
	notifyRetry retry.Config
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics enables the alert counter and error counters.
func WithMetrics(m *metric.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithNotifyRetry overrides the push retry policy.
func WithNotifyRetry(cfg retry.Config) Option {
	return func(d *Dispatcher) {
		d.notifyRetry = cfg
	}
}

// NewDispatcher builds a dispatcher over the given legs.
func NewDispatcher(deps Deps, opts ...Option) *Dispatcher {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = telemetry.Nop{}
	}

	d := &Dispatcher{
		store:       deps.Store,
		broadcast:   deps.Broadcast,
		notifier:    deps.Notifier,
		recorder:    recorder,
		logger:      slog.Default(),
		notifyRetry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs every leg for one alert. It never returns an error:
// the fan-out is terminal and failures are logged per leg.
func (d *Dispatcher) Dispatch(ctx context.Context, alert message.AlertEvent) {
	if err := alert.Validate(); err != nil {
		d.logger.Warn("Dropping invalid alert", "alert_id", alert.ID, "error", err)
		d.recordError("alert_invalid")
		return
	}

	logger := d.logger.With(
		"alert_id", alert.ID,
		"alert_type", string(alert.Type),
		"severity", string(alert.Severity))

	d.persist(ctx, logger, alert)

	if d.metrics != nil {
		d.metrics.RecordAlertGenerated(string(alert.Type), string(alert.Severity))
	}

	d.deliver(ctx, logger, alert)
	d.notify(ctx, logger, alert)

	d.recorder.RecordAlert(telemetry.AlertRow{
		Timestamp:  alert.Timestamp,
		AlertID:    alert.ID,
		SessionID:  alert.SessionID,
		DeviceID:   alert.DeviceID,
		AlertType:  string(alert.Type),
		Severity:   string(alert.Severity),
		Confidence: alert.Confidence,
	})
}

func (d *Dispatcher) persist(ctx context.Context, logger *slog.Logger, alert message.AlertEvent) {
	if d.store == nil {
		return
	}
	rec := alert
	if err := d.store.CreateAlert(ctx, &rec); err != nil {
		logger.Error("Alert persist failed", "error", err)
		d.recordError("persist")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, alert message.AlertEvent) {
	if d.broadcast == nil {
		return
	}
	payload, err := json.Marshal(message.NewAlertEnvelope(alert))
	if err != nil {
		logger.Error("Alert envelope marshal failed", "error", err)
		d.recordError("broadcast")
		return
	}
	delivered := d.broadcast.Broadcast(ctx, payload)
	logger.Debug("Alert broadcast", "delivered", delivered)
}

func (d *Dispatcher) notify(ctx context.Context, logger *slog.Logger, alert message.AlertEvent) {
	if d.notifier == nil {
		return
	}
	n := notification(alert)
	err := retry.Do(ctx, d.notifyRetry, func() error {
		return d.notifier.Notify(ctx, n)
	})
	if err != nil {
		logger.Warn("Push notification failed", "error", err)
		d.recordError("push")
	}
}

func (d *Dispatcher) recordError(kind string) {
	if d.metrics != nil {
		d.metrics.RecordError(serviceName, kind)
	}
}

// notification renders the push content for one alert.
func notification(alert message.AlertEvent) Notification {
	body := alert.Description
	if body == "" {
		body = titleCase(string(alert.Severity)) + " alert detected"
	}
	return Notification{
		Title: "Baby Monitor Alert - " + alert.Type.Display(),
		Body:  body,
		Data: map[string]string{
			"alert_type": string(alert.Type),
			"severity":   string(alert.Severity),
		},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
