// Package resultcache keeps recent inference results and device
// presence in the shared key-value store.
//
// Results live under ml:result:{session_id}:{modality} for an hour;
// each new result for the same key overwrites the previous one and
// restarts the clock. Presence lives under device:status:{device_id}
// with a five minute TTL refreshed by client pings, so a device that
// stops pinging ages into offline without any explicit cleanup.
package resultcache

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/kvstore"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
)

const (
	resultKeyPrefix   = "ml:result:"
	presenceKeyPrefix = "device:status:"

	defaultResultTTL   = time.Hour
	defaultPresenceTTL = 5 * time.Minute

	// StatusOnline is the only stored presence state. Offline devices
	// have no record: disconnect deletes the key and the TTL catches
	// devices that vanish without one.
	StatusOnline = "online"
)

// DeviceStatus is the stored presence record.
type DeviceStatus struct {
	DeviceID string    `json:"device_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Cache wraps the shared store with the result and presence key schema.
type Cache struct {
	store       kvstore.Store
	logger      *slog.Logger
	metrics     *metric.Metrics
	resultTTL   time.Duration
	presenceTTL time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables hit/miss/error counters on the shared metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithResultTTL overrides how long results stay readable.
func WithResultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.resultTTL = ttl
		}
	}
}

// WithPresenceTTL overrides how long a device stays online without a
// refresh.
func WithPresenceTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.presenceTTL = ttl
		}
	}
}

// NewCache creates a cache over the given store.
func NewCache(store kvstore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:       store,
		logger:      slog.Default(),
		resultTTL:   defaultResultTTL,
		presenceTTL: defaultPresenceTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func resultKey(sessionID string, modality message.Modality) string {
	return resultKeyPrefix + sessionID + ":" + modality.String()
}

func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID
}

// PutResult stores an inference result. Callers treat failures as
// non-fatal: a result that misses the cache is recomputed on the next
// chunk, nothing downstream depends on it being present.
func (c *Cache) PutResult(ctx context.Context, sessionID string, modality message.Modality, result any) error {
	err := c.store.SetJSON(ctx, resultKey(sessionID, modality), result, c.resultTTL)
	if err != nil {
		return errors.Wrap(err, "resultcache", "PutResult", "set")
	}
	return nil
}

// GetResult reads the latest result for (session, modality) into dest.
// Returns errors.ErrKeyNotFound on a miss. Every lookup is counted as
// hit, miss or error on the shared metrics.
func (c *Cache) GetResult(ctx context.Context, sessionID string, modality message.Modality, dest any) error {
	err := c.store.GetJSON(ctx, resultKey(sessionID, modality), dest)

	switch {
	case err == nil:
		c.recordLookup(modality, "hit")
		return nil
	case stderrors.Is(err, errors.ErrKeyNotFound):
		c.recordLookup(modality, "miss")
		return errors.ErrKeyNotFound
	default:
		c.recordLookup(modality, "error")
		return errors.Wrap(err, "resultcache", "GetResult", "get")
	}
}

// GetAudioResult is a typed convenience over GetResult.
func (c *Cache) GetAudioResult(ctx context.Context, sessionID string) (*message.AudioResult, error) {
	var result message.AudioResult
	if err := c.GetResult(ctx, sessionID, message.ModalityAudio, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetVideoResult is a typed convenience over GetResult.
func (c *Cache) GetVideoResult(ctx context.Context, sessionID string) (*message.VideoResult, error) {
	var result message.VideoResult
	if err := c.GetResult(ctx, sessionID, message.ModalityVideo, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkOnline records the device as online with a fresh last-seen stamp.
// Called on connect and again on every ping, so the TTL keeps sliding
// while the device is alive.
func (c *Cache) MarkOnline(ctx context.Context, deviceID string) error {
	status := DeviceStatus{
		DeviceID: deviceID,
		Status:   StatusOnline,
		LastSeen: time.Now().UTC(),
	}

	err := c.store.SetJSON(ctx, presenceKey(deviceID), status, c.presenceTTL)
	if err != nil {
		return errors.Wrap(err, "resultcache", "MarkOnline", "set")
	}
	return nil
}

// MarkOffline removes the presence record immediately instead of
// waiting for the TTL.
func (c *Cache) MarkOffline(ctx context.Context, deviceID string) error {
	if err := c.store.Delete(ctx, presenceKey(deviceID)); err != nil {
		return errors.Wrap(err, "resultcache", "MarkOffline", "delete")
	}
	return nil
}

// GetDeviceStatus returns the presence record, or errors.ErrKeyNotFound
// for a device that is offline or was never seen.
func (c *Cache) GetDeviceStatus(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	var status DeviceStatus
	err := c.store.GetJSON(ctx, presenceKey(deviceID), &status)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "resultcache", "GetDeviceStatus", "get")
	}
	return &status, nil
}

func (c *Cache) recordLookup(modality message.Modality, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordCacheEvent(modality.String(), outcome)
	}
}
