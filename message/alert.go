package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlertType identifies what condition triggered an alert.
type AlertType string

const (
	AlertCryDetected   AlertType = "cry_detected"
	AlertHighActivity  AlertType = "high_activity"
	AlertSafetyConcern AlertType = "safety_concern"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertCryDetected, AlertHighActivity, AlertSafetyConcern:
		return true
	}
	return false
}

// Display returns the type in human-readable form for notification
// titles, e.g. "cry_detected" becomes "Cry Detected".
func (t AlertType) Display() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Severity ranks how urgent an alert is. Severities are totally
// ordered: low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRanks defines the ordering used by Rank and AtLeast.
var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Rank returns the position of s in the severity ordering, or -1 for
// an unknown severity.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at least as severe as min. An unknown
// severity is never at least anything.
func (s Severity) AtLeast(min Severity) bool {
	sr, mr := s.Rank(), min.Rank()
	return sr >= 0 && mr >= 0 && sr >= mr
}

// AlertEvent is an alert raised by the inference rules, carried on the
// alert bus, persisted, and broadcast to connected clients.
//
// Confidence is the model confidence in [0, 1] for the triggering
// condition. Metadata carries rule-specific context such as the
// spectral features or detections behind the decision; its values must
// be JSON-serializable.
//
// Acknowledged and AcknowledgedAt are set by the store when a client
// acknowledges a persisted alert. They are zero on the wire.
type AlertEvent struct {
	ID             string         `json:"id"`
	Type           AlertType      `json:"alert_type"`
	Severity       Severity       `json:"severity"`
	Confidence     float64        `json:"confidence"`
	DeviceID       string         `json:"device_id"`
	SessionID      string         `json:"session_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Acknowledged   bool           `json:"acknowledged,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// NewAlertEvent builds an alert with a fresh ID and a current UTC
// timestamp. Callers fill Description and Metadata as needed.
func NewAlertEvent(alertType AlertType, severity Severity, confidence float64, deviceID, sessionID string) AlertEvent {
	return AlertEvent{
		ID:         uuid.New().String(),
		Type:       alertType,
		Severity:   severity,
		Confidence: confidence,
		DeviceID:   deviceID,
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
	}
}

// Validate checks the fields every alert must carry before it is
// published or persisted.
func (a AlertEvent) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown alert_type %q", a.Type)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", a.Severity)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", a.Confidence)
	}
	if a.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Envelope types sent to realtime clients.
const (
	EnvelopeTypeAlert = "alert"
)

// Envelope frames every message pushed to a realtime client, so
// clients can dispatch on Type before decoding Data.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewAlertEnvelope wraps an alert for realtime broadcast.
func NewAlertEnvelope(event AlertEvent) Envelope {
	return Envelope{Type: EnvelopeTypeAlert, Data: event}
}
