// Package session owns the stream session lifecycle. A session is the
// unit a monitor device streams under: started before the first chunk,
// fed by IngestChunk, and ended exactly once. Active sessions live in
// process memory with atomic counters; the durable record is written
// on start and finalized on end.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/YuvDwi/Cradle/store"
)

// StreamType declares what a device intends to send over a session.
type StreamType string

const (
	TypeAudio    StreamType = "audio"
	TypeVideo    StreamType = "video"
	TypeCombined StreamType = "combined"
)

// Valid reports whether t is a known stream type.
func (t StreamType) Valid() bool {
	switch t {
	case TypeAudio, TypeVideo, TypeCombined:
		return true
	}
	return false
}

// Status is the session state. Active sessions accept chunks; ended is
// terminal.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is a point-in-time view of one stream session. Counters on
// an active session keep moving after the snapshot is taken.
//
// Type is only known while a session is active: the durable record
// does not carry it, so sessions loaded from the store report an empty
// Type.
type Session struct {
	ID         string     `json:"session_id"`
	DeviceID   string     `json:"device_id"`
	Type       StreamType `json:"stream_type,omitempty"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ChunkCount int64      `json:"chunk_count"`
	ByteCount  int64      `json:"byte_count"`
}

// Stats summarizes a session for monitoring endpoints.
type Stats struct {
	SessionID       string  `json:"session_id"`
	DeviceID        string  `json:"device_id"`
	Status          Status  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	ChunkCount      int64   `json:"chunk_count"`
	ByteCount       int64   `json:"byte_count"`
	AvgChunkBytes   float64 `json:"avg_chunk_bytes"`
}

// liveSession is the in-memory state of an active session. Counters
// are atomic so concurrent chunk ingestion never serializes; the mutex
// guards only the one-way ended transition.
type liveSession struct {
	id         string
	deviceID   string
	streamType StreamType
	startedAt  time.Time

	chunkCount atomic.Int64
	byteCount  atomic.Int64

	mu      sync.Mutex
	ended   bool
	endedAt time.Time
}

// end performs the active to ended transition. The second and later
// calls report false and return the original end time.
func (ls *liveSession) end(at time.Time) (time.Time, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.ended {
		return ls.endedAt, false
	}
	ls.ended = true
	ls.endedAt = at
	return at, true
}

func (ls *liveSession) isEnded() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.ended
}

// snapshot copies the live state into an immutable view.
func (ls *liveSession) snapshot() *Session {
	s := &Session{
		ID:         ls.id,
		DeviceID:   ls.deviceID,
		Type:       ls.streamType,
		Status:     StatusActive,
		StartedAt:  ls.startedAt,
		ChunkCount: ls.chunkCount.Load(),
		ByteCount:  ls.byteCount.Load(),
	}

	ls.mu.Lock()
	if ls.ended {
		s.Status = StatusEnded
		t := ls.endedAt
		s.EndedAt = &t
	}
	ls.mu.Unlock()

	return s
}

// fromRecord converts a durable record into the session view.
func fromRecord(rec *store.SessionRecord) *Session {
	s := &Session{
		ID:         rec.SessionID,
		DeviceID:   rec.DeviceID,
		Status:     StatusEnded,
		StartedAt:  rec.StartedAt,
		ChunkCount: rec.TotalChunks,
		ByteCount:  rec.TotalBytesReceived,
	}
	if rec.IsActive {
		s.Status = StatusActive
	}
	if rec.EndedAt != nil {
		t := *rec.EndedAt
		s.EndedAt = &t
	}
	return s
}
