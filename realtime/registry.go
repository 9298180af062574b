package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/metric"
)

// Presence mirrors registry membership into the device presence cache.
// *resultcache.Cache satisfies it.
type Presence interface {
	MarkOnline(ctx context.Context, deviceID string) error
	MarkOffline(ctx context.Context, deviceID string) error
}

// conn is one registered device connection. gorilla connections do not
// tolerate concurrent writers, so every frame goes through write.
type conn struct {
	deviceID string
	ws       *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *conn) write(messageType int, payload []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wait))
	return c.ws.WriteMessage(messageType, payload)
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}

// RegistryConfig carries the optional collaborators of a Registry.
type RegistryConfig struct {
	// Presence is updated as devices join and leave. Optional.
	Presence Presence
	// Metrics drives the active-connection gauge. Optional.
	Metrics *metric.Metrics
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// WriteWait bounds a single frame write.
	WriteWait time.Duration
}

// Registry holds at most one live connection per device id. A device
// that reconnects replaces (and closes) its previous connection; a
// failed write disconnects the device.
type Registry struct {
	presence  Presence
	metrics   *metric.Metrics
	logger    *slog.Logger
	writeWait time.Duration

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &Registry{
		presence:  cfg.Presence,
		metrics:   cfg.Metrics,
		logger:    logger,
		writeWait: writeWait,
		conns:     make(map[string]*conn),
	}
}

// register installs ws as the device's connection, replacing and
// closing any previous one.
func (r *Registry) register(ctx context.Context, deviceID string, ws *websocket.Conn) *conn {
	c := &conn{
		deviceID: deviceID,
		ws:       ws,
	}

	r.mu.Lock()
	prev := r.conns[deviceID]
	r.conns[deviceID] = c
	r.mu.Unlock()

	if prev != nil {
		// Same device, same registry slot: the gauge and presence
		// state do not change, only the socket does.
		prev.close()
		r.logger.Debug("Replaced existing device connection", "device_id", deviceID)
	} else if r.metrics != nil {
		r.metrics.WebsocketConnected()
	}

	r.markOnline(ctx, deviceID)
	r.logger.Info("Device connected", "device_id", deviceID)
	return c
}

// remove drops the connection from the registry and closes it. The
// identity check keeps a late removal of a replaced connection from
// evicting its successor.
func (r *Registry) remove(ctx context.Context, c *conn) {
	r.mu.Lock()
	current, ok := r.conns[c.deviceID]
	if ok && current == c {
		delete(r.conns, c.deviceID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	c.close()

	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.WebsocketDisconnected()
	}
	if r.presence != nil {
		if err := r.presence.MarkOffline(ctx, c.deviceID); err != nil {
			r.logger.Debug("Presence update failed", "device_id", c.deviceID, "error", err)
		}
	}
	r.logger.Info("Device disconnected", "device_id", c.deviceID)
}

// Send writes payload to one device as a text frame. A write failure
// disconnects the device.
func (r *Registry) Send(ctx context.Context, deviceID string, payload []byte) error {
	r.mu.RLock()
	c := r.conns[deviceID]
	r.mu.RUnlock()

	if c == nil {
		return errors.WrapNotFound(
			fmt.Errorf("device %s is not connected", deviceID),
			"realtime.Registry", "Send", "look up connection")
	}
	if err := c.write(websocket.TextMessage, payload, r.writeWait); err != nil {
		r.remove(ctx, c)
		return errors.WrapTransient(err, "realtime.Registry", "Send", "write frame")
	}
	return nil
}

// Broadcast writes payload to every connected device and reports how
// many received it. Connections that fail the write are disconnected
// after the sweep.
func (r *Registry) Broadcast(ctx context.Context, payload []byte) int {
	delivered := 0
	var failed []*conn
	for _, c := range r.snapshot() {
		if err := c.write(websocket.TextMessage, payload, r.writeWait); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	for _, c := range failed {
		r.logger.Warn("Broadcast write failed, disconnecting device", "device_id", c.deviceID)
		r.remove(ctx, c)
	}
	return delivered
}

// Count reports the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// closeAll disconnects every device. Called on server shutdown.
func (r *Registry) closeAll(ctx context.Context) {
	for _, c := range r.snapshot() {
		r.remove(ctx, c)
	}
}

// markOnline refreshes the device's presence record. Presence is
// advisory; a failed write never disturbs the connection.
func (r *Registry) markOnline(ctx context.Context, deviceID string) {
	if r.presence == nil {
		return
	}
	if err := r.presence.MarkOnline(ctx, deviceID); err != nil {
		r.logger.Debug("Presence update failed", "device_id", deviceID, "error", err)
	}
}
