package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
)

// Schema statements. Idempotent so the daemon can run them on every
// start without a migration tool.
const (
	sessionsTableSQL = `
		CREATE TABLE IF NOT EXISTS stream_sessions (
			session_id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_chunks BIGINT NOT NULL DEFAULT 0,
			total_bytes_received BIGINT NOT NULL DEFAULT 0,
			avg_bitrate_kbps DOUBLE PRECISION NOT NULL DEFAULT 0,
			disconnect_reason TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`

	sessionsDeviceIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_stream_sessions_device
		ON stream_sessions (device_id)`

	sessionsStartedIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_stream_sessions_started
		ON stream_sessions (started_at DESC)`

	alertsTableSQL = `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			device_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			is_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`

	alertsCreatedIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_alerts_created
		ON alerts (created_at DESC)`

	alertsDeviceIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_alerts_device
		ON alerts (device_id)`

	devicesTableSQL = `
		CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT 'mobile',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_seen TIMESTAMPTZ,
			firmware_version TEXT NOT NULL DEFAULT '',
			battery_level DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
)

// schemaStatements in execution order.
func schemaStatements() []string {
	return []string{
		sessionsTableSQL,
		sessionsDeviceIndexSQL,
		sessionsStartedIndexSQL,
		alertsTableSQL,
		alertsCreatedIndexSQL,
		alertsDeviceIndexSQL,
		devicesTableSQL,
	}
}

// Open connects to Postgres with pool limits suited to the daemon's
// modest write rate. The connection is lazy; Migrate or Ping verifies
// it.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapInvalid(err, "store.postgres", "Open", "open dsn")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// PostgresStore implements Store on a Postgres database.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle. The caller keeps
// ownership of nothing: Close closes the handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapTransient(err, "store.postgres", "Migrate", "exec schema")
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	const query = `
		INSERT INTO stream_sessions
		(session_id, device_id, started_at, is_active, total_bytes_received)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.DeviceID, rec.StartedAt, rec.IsActive, rec.TotalBytesReceived)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "CreateSession", "insert")
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	const query = `
		SELECT session_id, device_id, started_at, ended_at, duration_seconds,
		       total_chunks, total_bytes_received, avg_bitrate_kbps,
		       disconnect_reason, is_active
		FROM stream_sessions WHERE session_id = $1`

	var rec SessionRecord
	var endedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&rec.SessionID, &rec.DeviceID, &rec.StartedAt, &endedAt, &rec.DurationSeconds,
		&rec.TotalChunks, &rec.TotalBytesReceived, &rec.AvgBitrateKbps,
		&rec.DisconnectReason, &rec.IsActive)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrSessionNotFound
		}
		return nil, errors.WrapTransient(err, "store.postgres", "GetSession", "query")
	}

	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	return &rec, nil
}

func (s *PostgresStore) FinishSession(ctx context.Context, rec *SessionRecord) error {
	const query = `
		UPDATE stream_sessions
		SET ended_at = $2, duration_seconds = $3, total_chunks = $4,
		    total_bytes_received = $5, avg_bitrate_kbps = $6,
		    disconnect_reason = $7, is_active = FALSE
		WHERE session_id = $1`

	var endedAt any
	if rec.EndedAt != nil {
		endedAt = *rec.EndedAt
	}

	result, err := s.db.ExecContext(ctx, query,
		rec.SessionID, endedAt, rec.DurationSeconds, rec.TotalChunks,
		rec.TotalBytesReceived, rec.AvgBitrateKbps, rec.DisconnectReason)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "FinishSession", "update")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "FinishSession", "rows affected")
	}
	if affected == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, q SessionQuery) ([]*SessionRecord, error) {
	query := `
		SELECT session_id, device_id, started_at, ended_at, duration_seconds,
		       total_chunks, total_bytes_received, avg_bitrate_kbps,
		       disconnect_reason, is_active
		FROM stream_sessions`

	var conds []string
	var args []any

	if q.DeviceID != "" {
		args = append(args, q.DeviceID)
		conds = append(conds, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if q.ActiveOnly {
		conds = append(conds, "is_active = TRUE")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListSessions", "query")
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var endedAt sql.NullTime

		err := rows.Scan(
			&rec.SessionID, &rec.DeviceID, &rec.StartedAt, &endedAt, &rec.DurationSeconds,
			&rec.TotalChunks, &rec.TotalBytesReceived, &rec.AvgBitrateKbps,
			&rec.DisconnectReason, &rec.IsActive)
		if err != nil {
			return nil, errors.WrapTransient(err, "store.postgres", "ListSessions", "scan")
		}

		if endedAt.Valid {
			t := endedAt.Time
			rec.EndedAt = &t
		}
		sessions = append(sessions, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListSessions", "iterate")
	}
	return sessions, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, alert *message.AlertEvent) error {
	metadata, err := marshalMetadata(alert.Metadata)
	if err != nil {
		return errors.WrapInvalid(err, "store.postgres", "CreateAlert", "marshal metadata")
	}

	const query = `
		INSERT INTO alerts
		(id, alert_type, severity, confidence, device_id, session_id,
		 description, metadata, is_acknowledged, acknowledged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var ackAt any
	if alert.AcknowledgedAt != nil {
		ackAt = *alert.AcknowledgedAt
	}

	_, err = s.db.ExecContext(ctx, query,
		alert.ID, string(alert.Type), string(alert.Severity), alert.Confidence,
		alert.DeviceID, alert.SessionID, alert.Description, metadata,
		alert.Acknowledged, ackAt, alert.Timestamp)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "CreateAlert", "insert")
	}
	return nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*message.AlertEvent, error) {
	const query = `
		SELECT id, alert_type, severity, confidence, device_id, session_id,
		       description, metadata, is_acknowledged, acknowledged_at, created_at
		FROM alerts WHERE id = $1`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrAlertNotFound
		}
		return nil, errors.WrapTransient(err, "store.postgres", "GetAlert", "query")
	}
	return alert, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, q AlertQuery) ([]*message.AlertEvent, error) {
	query := `
		SELECT id, alert_type, severity, confidence, device_id, session_id,
		       description, metadata, is_acknowledged, acknowledged_at, created_at
		FROM alerts`

	var conds []string
	var args []any

	if q.Severity != "" {
		args = append(args, string(q.Severity))
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, string(q.Type))
		conds = append(conds, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	if q.DeviceID != "" {
		args = append(args, q.DeviceID)
		conds = append(conds, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListAlerts", "query")
	}
	defer rows.Close()

	var alerts []*message.AlertEvent
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, errors.WrapTransient(err, "store.postgres", "ListAlerts", "scan")
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListAlerts", "iterate")
	}
	return alerts, nil
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE alerts SET is_acknowledged = TRUE, acknowledged_at = $2
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "AcknowledgeAlert", "update")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "AcknowledgeAlert", "rows affected")
	}
	if affected == 0 {
		return errors.ErrAlertNotFound
	}
	return nil
}

func (s *PostgresStore) AlertStats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{
		BySeverity: make(map[string]int64),
		ByType:     make(map[string]int64),
	}

	const totalsQuery = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_acknowledged)
		FROM alerts`

	err := s.db.QueryRowContext(ctx, totalsQuery).Scan(&stats.Total, &stats.Acknowledged)
	if err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "AlertStats", "totals")
	}

	if err := s.groupCounts(ctx, "severity", stats.BySeverity); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "alert_type", stats.ByType); err != nil {
		return nil, err
	}
	return stats, nil
}

// groupCounts fills dest with COUNT(*) grouped by the given column.
// Column names are compile-time constants, never user input.
func (s *PostgresStore) groupCounts(ctx context.Context, column string, dest map[string]int64) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM alerts GROUP BY %s", column, column)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "AlertStats", "group by "+column)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return errors.WrapTransient(err, "store.postgres", "AlertStats", "scan "+column)
		}
		dest[key] = count
	}
	return rows.Err()
}

func (s *PostgresStore) UpsertDevice(ctx context.Context, rec *DeviceRecord) error {
	const query = `
		INSERT INTO devices
		(device_id, name, device_type, is_active, last_seen,
		 firmware_version, battery_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			name = EXCLUDED.name,
			device_type = EXCLUDED.device_type,
			is_active = EXCLUDED.is_active,
			last_seen = EXCLUDED.last_seen,
			firmware_version = EXCLUDED.firmware_version,
			battery_level = EXCLUDED.battery_level,
			updated_at = NOW()`

	var lastSeen any
	if rec.LastSeen != nil {
		lastSeen = *rec.LastSeen
	}
	var battery any
	if rec.BatteryLevel != nil {
		battery = *rec.BatteryLevel
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.DeviceID, rec.Name, rec.DeviceType, rec.IsActive, lastSeen,
		rec.FirmwareVersion, battery)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "UpsertDevice", "upsert")
	}
	return nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (*DeviceRecord, error) {
	const query = `
		SELECT device_id, name, device_type, is_active, last_seen,
		       firmware_version, battery_level, created_at, updated_at
		FROM devices WHERE device_id = $1`

	var rec DeviceRecord
	var lastSeen sql.NullTime
	var battery sql.NullFloat64

	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(
		&rec.DeviceID, &rec.Name, &rec.DeviceType, &rec.IsActive, &lastSeen,
		&rec.FirmwareVersion, &battery, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrDeviceNotFound
		}
		return nil, errors.WrapTransient(err, "store.postgres", "GetDevice", "query")
	}

	if lastSeen.Valid {
		t := lastSeen.Time
		rec.LastSeen = &t
	}
	if battery.Valid {
		b := battery.Float64
		rec.BatteryLevel = &b
	}
	return &rec, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]*DeviceRecord, error) {
	const query = `
		SELECT device_id, name, device_type, is_active, last_seen,
		       firmware_version, battery_level, created_at, updated_at
		FROM devices ORDER BY device_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListDevices", "query")
	}
	defer rows.Close()

	var devices []*DeviceRecord
	for rows.Next() {
		var rec DeviceRecord
		var lastSeen sql.NullTime
		var battery sql.NullFloat64

		err := rows.Scan(
			&rec.DeviceID, &rec.Name, &rec.DeviceType, &rec.IsActive, &lastSeen,
			&rec.FirmwareVersion, &battery, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, errors.WrapTransient(err, "store.postgres", "ListDevices", "scan")
		}

		if lastSeen.Valid {
			t := lastSeen.Time
			rec.LastSeen = &t
		}
		if battery.Valid {
			b := battery.Float64
			rec.BatteryLevel = &b
		}
		devices = append(devices, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "store.postgres", "ListDevices", "iterate")
	}
	return devices, nil
}

// TouchDevice self-registers unknown devices: the first contact from a
// device id creates its row.
func (s *PostgresStore) TouchDevice(ctx context.Context, deviceID string, at time.Time) error {
	const query = `
		INSERT INTO devices (device_id, last_seen, created_at, updated_at)
		VALUES ($1, $2, $2, $2)
		ON CONFLICT (device_id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query, deviceID, at)
	if err != nil {
		return errors.WrapTransient(err, "store.postgres", "TouchDevice", "upsert")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "store.postgres", "Ping", "ping")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*message.AlertEvent, error) {
	var alert message.AlertEvent
	var alertType, severity string
	var metadata []byte
	var ackAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alertType, &severity, &alert.Confidence,
		&alert.DeviceID, &alert.SessionID, &alert.Description, &metadata,
		&alert.Acknowledged, &ackAt, &alert.Timestamp)
	if err != nil {
		return nil, err
	}

	alert.Type = message.AlertType(alertType)
	alert.Severity = message.Severity(severity)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	return &alert, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}
