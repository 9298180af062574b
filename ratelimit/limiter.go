// Package ratelimit gates inference requests per device and modality
// with a fixed window counter in the shared key-value store.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/YuvDwi/Cradle/kvstore"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
)

// keyPrefix namespaces limiter counters in the shared store.
const keyPrefix = "rate_limit:"

// Limit is a fixed window: at most Requests hits per Window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// Config carries the per-modality limits.
type Config struct {
	Audio Limit
	Video Limit
}

// DefaultConfig matches the deployed gate: video inference costs more,
// so its window is tighter.
func DefaultConfig() Config {
	return Config{
		Audio: Limit{Requests: 10, Window: time.Minute},
		Video: Limit{Requests: 5, Window: time.Minute},
	}
}

// Limiter throttles per (modality, device) pairs. It is an advisory
// gate: when the backing store is unreachable the limiter fails open
// and the burst goes through.
type Limiter struct {
	store   kvstore.Store
	limits  map[message.Modality]Limit
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics enables denial counters on the shared metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store kvstore.Store, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		limits: map[message.Modality]Limit{
			message.ModalityAudio: cfg.Audio,
			message.ModalityVideo: cfg.Video,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request from the device fits in the
// current window. Counting is a side effect: every call increments the
// window counter, and the first call of a window starts its TTL.
func (l *Limiter) Allow(ctx context.Context, modality message.Modality, deviceID string) bool {
	limit, ok := l.limits[modality]
	if !ok || limit.Requests <= 0 {
		return true
	}

	key := keyPrefix + modality.String() + ":" + deviceID

	count, err := l.store.IncrWithTTL(ctx, key, limit.Window)
	if err != nil {
		// Fail open: the store is advisory, not a system of record
		l.logger.Warn("rate limit check failed, allowing request",
			"modality", modality.String(),
			"device_id", deviceID,
			"error", err)
		return true
	}

	if count > limit.Requests {
		l.logger.Debug("rate limit exceeded",
			"modality", modality.String(),
			"device_id", deviceID,
			"count", count,
			"limit", limit.Requests)
		if l.metrics != nil {
			l.metrics.RecordRateLimitDenial(modality.String())
		}
		return false
	}

	return true
}
