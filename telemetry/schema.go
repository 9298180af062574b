package telemetry

// SQL schemas for the ClickHouse telemetry tables.

const (
	// InferenceEventsTableSQL creates the inference_events table
	InferenceEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS inference_events (
			timestamp DateTime64(3),
			session_id String,
			device_id String,
			modality String,
			model String,
			inference_ms Float64,
			alert_count UInt32
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// AlertEventsTableSQL creates the alert_events table
	AlertEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS alert_events (
			timestamp DateTime64(3),
			alert_id String,
			session_id String,
			device_id String,
			alert_type String,
			severity String,
			confidence Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements.
func AllTables() []string {
	return []string{
		InferenceEventsTableSQL,
		AlertEventsTableSQL,
	}
}

const (
	insertInferenceSQL = `INSERT INTO inference_events (timestamp, session_id, device_id, modality, model, inference_ms, alert_count)`
	insertAlertSQL     = `INSERT INTO alert_events (timestamp, alert_id, session_id, device_id, alert_type, severity, confidence)`
)
