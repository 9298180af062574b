// Package realtime is the device-facing WebSocket edge. A Registry
// tracks at most one live connection per device id; the Server
// upgrades /ws/{device_id}, turns inbound binary frames into chunk
// envelopes for the bus and pushes alert broadcasts back out through
// the registry.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/metric"
	"github.com/YuvDwi/Cradle/pkg/buffer"
)

const (
	serviceName = "realtime"

	defaultPort            = 8000
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
	defaultMaxMessageBytes = 1 << 20
	defaultPingInterval    = 30 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultInboundBuffer   = 256

	defaultAudioTopic = "audio-stream"
	defaultVideoTopic = "video-stream"

	// publishInterval paces the queue drain toward the bus.
	publishInterval = 10 * time.Millisecond

	// drainGrace bounds the final queue flush during Stop.
	drainGrace = 5 * time.Second
)

// Bus is the publish edge chunk envelopes go out on. *natsclient.Client
// satisfies it.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// chunkOut is one marshaled chunk envelope waiting for the bus.
type chunkOut struct {
	subject string
	data    []byte
}

// ServerConfig carries the WebSocket server tunables. Zero values take
// defaults.
type ServerConfig struct {
	Port            int
	AudioTopic      string
	VideoTopic      string
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageBytes caps a single inbound frame.
	MaxMessageBytes int64
	PingInterval    time.Duration
	// PongWait is how long a silent connection is kept before the read
	// deadline drops it. Must exceed PingInterval.
	PongWait  time.Duration
	WriteWait time.Duration
	// InboundBuffer is the capacity of the chunk queue between client
	// reads and the bus. The oldest chunk is shed when it fills.
	InboundBuffer int

	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Server accepts device WebSocket connections and bridges their chunk
// stream onto the bus.
type Server struct {
	port            int
	audioTopic      string
	videoTopic      string
	maxMessageBytes int64
	pingInterval    time.Duration
	pongWait        time.Duration
	writeWait       time.Duration

	bus      Bus
	registry *Registry
	logger   *slog.Logger
	metrics  *metric.Metrics

	upgrader   websocket.Upgrader
	httpServer *http.Server
	queue      buffer.Buffer[chunkOut]

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	lifecycleMu  sync.Mutex
}

// NewServer wires a WebSocket server over the given bus and registry.
func NewServer(cfg ServerConfig, bus Bus, registry *Registry) (*Server, error) {
	if bus == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"realtime.Server", "NewServer", "bus is required")
	}
	if registry == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"realtime.Server", "NewServer", "registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:            cfg.Port,
		audioTopic:      cfg.AudioTopic,
		videoTopic:      cfg.VideoTopic,
		maxMessageBytes: cfg.MaxMessageBytes,
		pingInterval:    cfg.PingInterval,
		pongWait:        cfg.PongWait,
		writeWait:       cfg.WriteWait,
		bus:             bus,
		registry:        registry,
		logger:          logger,
		metrics:         cfg.Metrics,
		shutdown:        make(chan struct{}),
	}
	if s.port <= 0 {
		s.port = defaultPort
	}
	if s.audioTopic == "" {
		s.audioTopic = defaultAudioTopic
	}
	if s.videoTopic == "" {
		s.videoTopic = defaultVideoTopic
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = defaultMaxMessageBytes
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	if s.pongWait <= 0 {
		s.pongWait = defaultPongWait
	}
	if s.writeWait <= 0 {
		s.writeWait = defaultWriteWait
	}

	readBuf := cfg.ReadBufferSize
	if readBuf <= 0 {
		readBuf = defaultReadBufferSize
	}
	writeBuf := cfg.WriteBufferSize
	if writeBuf <= 0 {
		writeBuf = defaultWriteBufferSize
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  readBuf,
		WriteBufferSize: writeBuf,
		CheckOrigin: func(_ *http.Request) bool {
			// Monitor clients connect from arbitrary origins.
			return true
		},
	}

	inbound := cfg.InboundBuffer
	if inbound <= 0 {
		inbound = defaultInboundBuffer
	}
	queue, err := buffer.NewCircularBuffer[chunkOut](inbound,
		buffer.WithOverflowPolicy[chunkOut](buffer.DropOldest),
		buffer.WithDropCallback[chunkOut](func(dropped chunkOut) {
			s.logger.Warn("Inbound chunk queue full, dropping oldest", "subject", dropped.subject)
			if s.metrics != nil {
				s.metrics.RecordError(serviceName, "inbound_overflow")
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "realtime.Server", "NewServer", "create chunk queue")
	}
	s.queue = queue

	return s, nil
}

// Start brings up the HTTP listener, the publish loop and the ping
// loop. The context parents every connection handler.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapInvalidState(
			fmt.Errorf("server already started"),
			"realtime.Server", "Start", "check started state")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/{device_id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleUpgrade(runCtx, w, r)
	})
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.wg.Add(1)
	go s.publishLoop(runCtx)

	s.wg.Add(1)
	go s.pingLoop(runCtx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Realtime server failed", "port", s.port, "error", err)
			if s.metrics != nil {
				s.metrics.RecordError(serviceName, "http_server")
			}
		}
	}()

	s.started.Store(true)
	s.logger.Info("Realtime server listening", "port", s.port, "path", "/ws/{device_id}")
	return nil
}

// Stop shuts the listener down, closes every device connection and
// flushes the remaining chunk queue within the timeout.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}

	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP shutdown failed", "error", err)
		}
	}

	// Erroring the blocked reads is what unblocks the per-connection
	// goroutines.
	s.registry.closeAll(shutdownCtx)

	if s.cancel != nil {
		s.cancel()
	}

	var err error
	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(timeout):
		err = errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"realtime.Server", "Stop", "wait for goroutines")
	}

	_ = s.queue.Close()

	s.started.Store(false)
	return err
}

// handleUpgrade upgrades one /ws/{device_id} request and hands the
// connection to its own goroutine.
func (s *Server) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		http.Error(w, "device id is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "device_id", deviceID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordError(serviceName, "upgrade")
		}
		return
	}

	s.wg.Add(1)
	go s.handleDevice(ctx, deviceID, ws)
}

// handleDevice owns one connection: register, read until error or
// shutdown, deregister. The read deadline is refreshed by traffic and
// by pongs, so a dead peer is dropped after PongWait.
func (s *Server) handleDevice(ctx context.Context, deviceID string, ws *websocket.Conn) {
	defer s.wg.Done()

	c := s.registry.register(ctx, deviceID, ws)
	defer s.registry.remove(ctx, c)

	ws.SetReadLimit(s.maxMessageBytes)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		_ = ws.SetReadDeadline(time.Now().Add(s.pongWait))
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Device read failed", "device_id", deviceID, "error", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.enqueueChunk(deviceID, data)
		case websocket.TextMessage:
			if string(data) == "ping" {
				if err := c.write(websocket.TextMessage, []byte("pong"), s.writeWait); err != nil {
					return
				}
			}
		}
	}
}

// enqueueChunk wraps one inbound binary frame in a chunk envelope and
// queues it for the bus. Only the metadata envelope travels past this
// point, never the raw media.
func (s *Server) enqueueChunk(deviceID string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	modality := message.ModalityForSize(len(payload))
	chunk := message.NewChunkMessage("", deviceID, modality, len(payload))
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Warn("Chunk envelope marshal failed", "device_id", deviceID, "error", err)
		return
	}

	subject := s.audioTopic
	if modality == message.ModalityVideo {
		subject = s.videoTopic
	}
	if err := s.queue.Write(chunkOut{subject: subject, data: data}); err != nil {
		// Queue closed, shutdown in progress.
		return
	}
	if s.metrics != nil {
		s.metrics.RecordMessageReceived(serviceName, modality.String()+"_chunk")
	}
}

// publishLoop moves queued chunk envelopes onto the bus so a slow bus
// never blocks a connection's read loop.
func (s *Server) publishLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			s.drainQueue(ctx)
			return
		case <-ticker.C:
			for {
				out, ok := s.queue.Read()
				if !ok {
					break
				}
				s.publish(ctx, out)
			}
		}
	}
}

// drainQueue flushes whatever is still queued at shutdown, bounded by
// drainGrace.
func (s *Server) drainQueue(ctx context.Context) {
	timer := time.NewTimer(drainGrace)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if remaining := s.queue.Size(); remaining > 0 {
				s.logger.Warn("Chunk queue drain timed out", "remaining", remaining)
			}
			return
		default:
			out, ok := s.queue.Read()
			if !ok {
				return
			}
			s.publish(ctx, out)
		}
	}
}

func (s *Server) publish(ctx context.Context, out chunkOut) {
	if err := s.bus.Publish(ctx, out.subject, out.data); err != nil {
		s.logger.Warn("Chunk publish failed", "subject", out.subject, "error", err)
		if s.metrics != nil {
			s.metrics.RecordError(serviceName, "chunk_publish")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordMessagePublished(serviceName, out.subject)
	}
}

// pingLoop keeps connections fresh: a ping per interval, a presence
// refresh for everyone that still accepts writes.
func (s *Server) pingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.pingConnections(ctx)
		}
	}
}

func (s *Server) pingConnections(ctx context.Context) {
	for _, c := range s.registry.snapshot() {
		if err := c.write(websocket.PingMessage, nil, s.writeWait); err != nil {
			s.registry.remove(ctx, c)
			continue
		}
		s.registry.markOnline(ctx, c.deviceID)
	}
}
