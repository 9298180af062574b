// Package store persists the durable records of the pipeline: stream
// sessions, alerts and devices. Postgres backs production; the memory
// implementation serves tests and single-node development.
package store

import (
	"context"
	"time"

	"github.com/YuvDwi/Cradle/message"
)

// DefaultListLimit caps unbounded list queries.
const DefaultListLimit = 50

// SessionRecord is one stream session. Active sessions are mutated in
// memory by the session manager and written back here on end, so the
// database reflects the final state, not a per-chunk counter.
type SessionRecord struct {
	SessionID          string     `json:"session_id"`
	DeviceID           string     `json:"device_id"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	DurationSeconds    float64    `json:"duration_seconds"`
	TotalChunks        int64      `json:"total_chunks"`
	TotalBytesReceived int64      `json:"total_bytes_received"`
	AvgBitrateKbps     float64    `json:"avg_bitrate_kbps"`
	DisconnectReason   string     `json:"disconnect_reason,omitempty"`
	IsActive           bool       `json:"is_active"`
}

// DeviceRecord is a known streaming device. Devices self-register on
// first contact; TouchDevice creates the row if needed.
type DeviceRecord struct {
	DeviceID        string     `json:"device_id"`
	Name            string     `json:"name"`
	DeviceType      string     `json:"device_type"`
	IsActive        bool       `json:"is_active"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	BatteryLevel    *float64   `json:"battery_level,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SessionQuery filters ListSessions. Zero values mean no filter; Limit
// zero means DefaultListLimit.
type SessionQuery struct {
	DeviceID   string
	ActiveOnly bool
	Limit      int
}

// AlertQuery filters ListAlerts. Zero values mean no filter; Limit
// zero means DefaultListLimit.
type AlertQuery struct {
	Severity message.Severity
	Type     message.AlertType
	DeviceID string
	Limit    int
}

// AlertStats summarizes the alerts table.
type AlertStats struct {
	Total        int64            `json:"total"`
	Acknowledged int64            `json:"acknowledged"`
	BySeverity   map[string]int64 `json:"by_severity"`
	ByType       map[string]int64 `json:"by_type"`
}

// SessionStore persists stream sessions.
type SessionStore interface {
	// CreateSession inserts a new active session.
	CreateSession(ctx context.Context, rec *SessionRecord) error

	// GetSession returns the stored session or errors.ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)

	// FinishSession writes the final state of an ended session.
	FinishSession(ctx context.Context, rec *SessionRecord) error

	// ListSessions returns sessions newest-first.
	ListSessions(ctx context.Context, q SessionQuery) ([]*SessionRecord, error)
}

// AlertStore persists alert events.
type AlertStore interface {
	// CreateAlert inserts an alert exactly once.
	CreateAlert(ctx context.Context, alert *message.AlertEvent) error

	// GetAlert returns the stored alert or errors.ErrAlertNotFound.
	GetAlert(ctx context.Context, id string) (*message.AlertEvent, error)

	// ListAlerts returns alerts newest-first.
	ListAlerts(ctx context.Context, q AlertQuery) ([]*message.AlertEvent, error)

	// AcknowledgeAlert marks an alert acknowledged at the given time.
	// Acknowledging twice overwrites the timestamp.
	AcknowledgeAlert(ctx context.Context, id string, at time.Time) error

	// AlertStats aggregates counts by severity and type.
	AlertStats(ctx context.Context) (*AlertStats, error)
}

// DeviceStore persists the device registry.
type DeviceStore interface {
	// UpsertDevice inserts or fully updates a device.
	UpsertDevice(ctx context.Context, rec *DeviceRecord) error

	// GetDevice returns the stored device or errors.ErrDeviceNotFound.
	GetDevice(ctx context.Context, deviceID string) (*DeviceRecord, error)

	// ListDevices returns all devices ordered by id.
	ListDevices(ctx context.Context) ([]*DeviceRecord, error)

	// TouchDevice updates last-seen, creating the device if unknown.
	TouchDevice(ctx context.Context, deviceID string, at time.Time) error
}

// Store is the combined persistence surface the daemon wires up.
type Store interface {
	SessionStore
	AlertStore
	DeviceStore

	Ping(ctx context.Context) error
	Close() error
}
