package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertEvent(t *testing.T) {
	event := NewAlertEvent(AlertCryDetected, SeverityHigh, 0.93, "dev-1", "sess-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, AlertCryDetected, event.Type)
	assert.Equal(t, SeverityHigh, event.Severity)
	assert.Equal(t, 0.93, event.Confidence)
	assert.Equal(t, "dev-1", event.DeviceID)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
	assert.NoError(t, event.Validate())

	other := NewAlertEvent(AlertCryDetected, SeverityHigh, 0.93, "dev-1", "sess-1")
	assert.NotEqual(t, event.ID, other.ID)
}

func TestAlertEvent_Validate(t *testing.T) {
	valid := NewAlertEvent(AlertHighActivity, SeverityMedium, 0.8, "dev-1", "sess-1")

	tests := []struct {
		name    string
		mutate  func(*AlertEvent)
		wantErr string
	}{
		{name: "valid", mutate: func(*AlertEvent) {}},
		{
			name:   "no session is allowed",
			mutate: func(a *AlertEvent) { a.SessionID = "" },
		},
		{
			name:    "missing id",
			mutate:  func(a *AlertEvent) { a.ID = "" },
			wantErr: "id is required",
		},
		{
			name:    "unknown type",
			mutate:  func(a *AlertEvent) { a.Type = "intruder" },
			wantErr: "alert_type",
		},
		{
			name:    "unknown severity",
			mutate:  func(a *AlertEvent) { a.Severity = "extreme" },
			wantErr: "severity",
		},
		{
			name:    "confidence above one",
			mutate:  func(a *AlertEvent) { a.Confidence = 1.5 },
			wantErr: "confidence",
		},
		{
			name:    "negative confidence",
			mutate:  func(a *AlertEvent) { a.Confidence = -0.1 },
			wantErr: "confidence",
		},
		{
			name:    "missing device",
			mutate:  func(a *AlertEvent) { a.DeviceID = "" },
			wantErr: "device_id",
		},
		{
			name:    "zero timestamp",
			mutate:  func(a *AlertEvent) { a.Timestamp = time.Time{} },
			wantErr: "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := valid
			tt.mutate(&event)
			err := event.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSeverity_Ordering(t *testing.T) {
	ordered := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}

	assert.True(t, SeverityCritical.AtLeast(SeverityLow))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityHigh))

	unknown := Severity("extreme")
	assert.Equal(t, -1, unknown.Rank())
	assert.False(t, unknown.AtLeast(SeverityLow))
	assert.False(t, SeverityCritical.AtLeast(unknown))
}

func TestAlertType_Display(t *testing.T) {
	assert.Equal(t, "Cry Detected", AlertCryDetected.Display())
	assert.Equal(t, "High Activity", AlertHighActivity.Display())
	assert.Equal(t, "Safety Concern", AlertSafetyConcern.Display())
}

func TestAlertEvent_WireFormat(t *testing.T) {
	event := NewAlertEvent(AlertSafetyConcern, SeverityHigh, 0.9, "dev-1", "sess-1")
	event.Description = "Potentially dangerous object detected: knife"
	event.Metadata = map[string]any{"safety_alert": event.Description}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, "safety_concern", fields["alert_type"])
	assert.Equal(t, "high", fields["severity"])
	assert.Equal(t, 0.9, fields["confidence"])
	assert.Equal(t, "dev-1", fields["device_id"])
	assert.Equal(t, "sess-1", fields["session_id"])
	assert.Contains(t, fields, "description")
	assert.Contains(t, fields, "metadata")

	// Acknowledgment state stays off the wire until the store sets it.
	assert.NotContains(t, fields, "acknowledged")
	assert.NotContains(t, fields, "acknowledged_at")
}

func TestNewAlertEnvelope(t *testing.T) {
	event := NewAlertEvent(AlertCryDetected, SeverityMedium, 0.75, "dev-1", "")
	env := NewAlertEnvelope(event)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded struct {
		Type string     `json:"type"`
		Data AlertEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EnvelopeTypeAlert, decoded.Type)
	assert.Equal(t, event.ID, decoded.Data.ID)
	assert.Equal(t, AlertCryDetected, decoded.Data.Type)
}
