// Package telemetry streams per-event analytics rows into ClickHouse.
//
// Recording is fire-and-forget: rows ride a bounded channel into a
// batch-insert loop, and a full channel drops the row rather than
// slowing the pipeline. When telemetry is disabled, Nop stands in for
// the real sink.
package telemetry

import "time"

// InferenceRow captures one completed inference pass.
type InferenceRow struct {
	Timestamp   time.Time
	SessionID   string
	DeviceID    string
	Modality    string
	Model       string
	InferenceMs float64
	AlertCount  uint32
}

// AlertRow captures one emitted alert.
type AlertRow struct {
	Timestamp  time.Time
	AlertID    string
	SessionID  string
	DeviceID   string
	AlertType  string
	Severity   string
	Confidence float64
}

// Recorder accepts telemetry rows. Implementations must not block the
// caller.
type Recorder interface {
	RecordInference(row InferenceRow)
	RecordAlert(row AlertRow)
}

// Nop discards every row.
type Nop struct{}

var _ Recorder = Nop{}

// RecordInference implements Recorder.
func (Nop) RecordInference(InferenceRow) {}

// RecordAlert implements Recorder.
func (Nop) RecordAlert(AlertRow) {}
