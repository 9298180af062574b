package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
	"github.com/YuvDwi/Cradle/store"
)

const (
	defaultAudioTopic = "audio-stream"
	defaultVideoTopic = "video-stream"

	// DefaultDisconnectReason is recorded when End is called without a
	// more specific cause.
	DefaultDisconnectReason = "client_disconnect"
)

// Publisher is the bus edge chunk envelopes are published to.
// *natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Manager tracks active sessions and publishes a chunk envelope for
// every ingested chunk. One manager instance owns the sessions it
// started; the store is the cross-instance source of truth for ended
// ones.
type Manager struct {
	sessions store.SessionStore
	bus      Publisher
	logger   *slog.Logger

	audioTopic string
	videoTopic string

	mu     sync.RWMutex
	active map[string]*liveSession
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTopics overrides the bus topics chunk envelopes go out on.
func WithTopics(audio, video string) Option {
	return func(m *Manager) {
		if audio != "" {
			m.audioTopic = audio
		}
		if video != "" {
			m.videoTopic = video
		}
	}
}

// NewManager creates a session manager over the given store and bus.
func NewManager(sessions store.SessionStore, bus Publisher, opts ...Option) *Manager {
	m := &Manager{
		sessions:   sessions,
		bus:        bus,
		logger:     slog.Default(),
		audioTopic: defaultAudioTopic,
		videoTopic: defaultVideoTopic,
		active:     make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a new session for the device and persists its record.
func (m *Manager) Start(ctx context.Context, deviceID string, streamType StreamType) (*Session, error) {
	if deviceID == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("device_id is required"),
			"session.Manager", "Start", "validate request")
	}
	if !streamType.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown stream type %q", streamType),
			"session.Manager", "Start", "validate request")
	}

	ls := &liveSession{
		id:         uuid.New().String(),
		deviceID:   deviceID,
		streamType: streamType,
		startedAt:  time.Now().UTC(),
	}

	rec := &store.SessionRecord{
		SessionID: ls.id,
		DeviceID:  deviceID,
		StartedAt: ls.startedAt,
		IsActive:  true,
	}
	if err := m.sessions.CreateSession(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "session.Manager", "Start", "persist session")
	}

	m.mu.Lock()
	m.active[ls.id] = ls
	m.mu.Unlock()

	m.logger.Info("stream session started",
		"session_id", ls.id,
		"device_id", deviceID,
		"stream_type", string(streamType))

	return ls.snapshot(), nil
}

// IngestChunk accounts one chunk against the session and publishes its
// envelope to the modality topic. The raw payload never reaches the
// bus; only its size travels.
//
// Publishing is fire-and-forget: a bus failure is logged and the chunk
// still counts as ingested.
func (m *Manager) IngestChunk(ctx context.Context, sessionID string, payload []byte, modality message.Modality) error {
	if len(payload) == 0 {
		return errors.ErrInvalidData
	}
	if !modality.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("unknown modality %q", modality),
			"session.Manager", "IngestChunk", "validate chunk")
	}

	m.mu.RLock()
	ls, ok := m.active[sessionID]
	m.mu.RUnlock()

	if !ok {
		return m.classifyUnknown(ctx, sessionID)
	}
	if ls.isEnded() {
		return errors.ErrSessionEnded
	}

	ls.chunkCount.Add(1)
	ls.byteCount.Add(int64(len(payload)))

	envelope := message.NewChunkMessage(sessionID, ls.deviceID, modality, len(payload))
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.WrapInvalid(err, "session.Manager", "IngestChunk", "marshal envelope")
	}

	if err := m.bus.Publish(ctx, m.topicFor(modality), data); err != nil {
		m.logger.Warn("chunk envelope not published",
			"session_id", sessionID,
			"modality", modality.String(),
			"error", err)
	}
	return nil
}

// End closes the session with the default disconnect reason.
func (m *Manager) End(ctx context.Context, sessionID string) (*Session, error) {
	return m.EndWithReason(ctx, sessionID, DefaultDisconnectReason)
}

// EndWithReason performs the active to ended transition exactly once
// and persists the final counters. The in-memory transition is one-way
// even when persistence fails; the error is returned so callers can
// surface it, but a retry will report the session as already ended.
func (m *Manager) EndWithReason(ctx context.Context, sessionID, reason string) (*Session, error) {
	m.mu.RLock()
	ls, ok := m.active[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, m.classifyUnknown(ctx, sessionID)
	}

	endedAt, won := ls.end(time.Now().UTC())
	if !won {
		return nil, errors.ErrSessionEnded
	}

	chunks := ls.chunkCount.Load()
	bytes := ls.byteCount.Load()
	duration := endedAt.Sub(ls.startedAt).Seconds()

	var bitrate float64
	if duration > 0 {
		bitrate = float64(bytes) * 8 / 1000 / duration
	}

	ended := endedAt
	rec := &store.SessionRecord{
		SessionID:          ls.id,
		DeviceID:           ls.deviceID,
		StartedAt:          ls.startedAt,
		EndedAt:            &ended,
		DurationSeconds:    duration,
		TotalChunks:        chunks,
		TotalBytesReceived: bytes,
		AvgBitrateKbps:     bitrate,
		DisconnectReason:   reason,
	}
	if err := m.sessions.FinishSession(ctx, rec); err != nil {
		// The ended entry stays in the map so later calls classify as
		// already ended; it is dropped on restart.
		m.logger.Warn("session final state not persisted",
			"session_id", sessionID,
			"error", err)
		return nil, errors.Wrap(err, "session.Manager", "End", "persist final state")
	}

	m.mu.Lock()
	delete(m.active, sessionID)
	m.mu.Unlock()

	m.logger.Info("stream session ended",
		"session_id", sessionID,
		"device_id", ls.deviceID,
		"duration_seconds", duration,
		"chunks", chunks,
		"bytes", bytes,
		"reason", reason)

	return ls.snapshot(), nil
}

// Get returns the live view of an active session or the stored view of
// an ended one.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	ls, ok := m.active[sessionID]
	m.mu.RUnlock()

	if ok {
		return ls.snapshot(), nil
	}

	rec, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec), nil
}

// List returns sessions for a device (all devices when deviceID is
// empty), newest first. Sessions this instance holds active are
// overlaid with their live counters.
func (m *Manager) List(ctx context.Context, deviceID string, limit int) ([]*Session, error) {
	recs, err := m.sessions.ListSessions(ctx, store.SessionQuery{
		DeviceID: deviceID,
		Limit:    limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "session.Manager", "List", "list sessions")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(recs))
	for _, rec := range recs {
		if ls, ok := m.active[rec.SessionID]; ok {
			sessions = append(sessions, ls.snapshot())
			continue
		}
		sessions = append(sessions, fromRecord(rec))
	}
	return sessions, nil
}

// Stats summarizes one session. Active sessions report their running
// duration; ended ones report the persisted final counters.
func (m *Manager) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		SessionID:  s.ID,
		DeviceID:   s.DeviceID,
		Status:     s.Status,
		ChunkCount: s.ChunkCount,
		ByteCount:  s.ByteCount,
	}

	switch {
	case s.EndedAt != nil:
		stats.DurationSeconds = s.EndedAt.Sub(s.StartedAt).Seconds()
	default:
		stats.DurationSeconds = time.Since(s.StartedAt).Seconds()
	}
	if s.ChunkCount > 0 {
		stats.AvgChunkBytes = float64(s.ByteCount) / float64(s.ChunkCount)
	}
	return stats, nil
}

// ActiveCount reports how many sessions this instance currently holds.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// classifyUnknown distinguishes the three ways a session id can miss
// the active map: never existed, already ended, or active on another
// instance.
func (m *Manager) classifyUnknown(ctx context.Context, sessionID string) error {
	rec, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return errors.ErrSessionNotFound
	}
	if !rec.IsActive {
		return errors.ErrSessionEnded
	}
	return errors.ErrSessionInactive
}

func (m *Manager) topicFor(modality message.Modality) string {
	if modality == message.ModalityVideo {
		return m.videoTopic
	}
	return m.audioTopic
}
