package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvDwi/Cradle/message"
)

func TestEvaluateAudio(t *testing.T) {
	tests := []struct {
		name         string
		result       *message.AudioResult
		wantSeverity message.Severity
		wantNone     bool
	}{
		{
			name:         "very confident cry is high severity",
			result:       &message.AudioResult{IsCrying: true, Confidence: 0.95},
			wantSeverity: message.SeverityHigh,
		},
		{
			name:         "confident cry is medium severity",
			result:       &message.AudioResult{IsCrying: true, Confidence: 0.75},
			wantSeverity: message.SeverityMedium,
		},
		{
			name:         "boundary confidence stays medium",
			result:       &message.AudioResult{IsCrying: true, Confidence: 0.71},
			wantSeverity: message.SeverityMedium,
		},
		{
			name:         "weak cry is low severity",
			result:       &message.AudioResult{IsCrying: true, Confidence: 0.5},
			wantSeverity: message.SeverityLow,
		},
		{
			name:     "no crying means no alert",
			result:   &message.AudioResult{IsCrying: false, Confidence: 0.99},
			wantNone: true,
		},
		{
			name:     "nil result means no alert",
			result:   nil,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := EvaluateAudio("dev-1", "sess-1", tt.result)

			if tt.wantNone {
				assert.Empty(t, alerts)
				return
			}

			require.Len(t, alerts, 1)
			alert := alerts[0]
			assert.Equal(t, message.AlertCryDetected, alert.Type)
			assert.Equal(t, tt.wantSeverity, alert.Severity)
			assert.Equal(t, tt.result.Confidence, alert.Confidence)
			assert.Equal(t, "dev-1", alert.DeviceID)
			assert.Equal(t, "sess-1", alert.SessionID)
			assert.NotEmpty(t, alert.ID)
			assert.False(t, alert.Timestamp.IsZero())
			assert.Empty(t, alert.Description)
			assert.Contains(t, alert.Metadata, "audio_features")
			assert.Contains(t, alert.Metadata, "model_used")
			assert.Contains(t, alert.Metadata, "inference_time_ms")
		})
	}
}

func TestEvaluateVideoHighActivityAndSafety(t *testing.T) {
	result := &message.VideoResult{
		FrameNumber: 7,
		Detections:  []message.Detection{{ClassName: "knife", Confidence: 0.8}},
		Analysis: message.SceneAnalysis{
			ActivityLevel: message.ActivityLevelHigh,
			SafetyAlerts: []string{
				"Potentially dangerous object detected: knife",
				"High activity level detected",
			},
		},
		InferenceTimeMs: 12.5,
		ModelUsed:       ModelBasic,
	}

	alerts := EvaluateVideo("dev-1", "sess-1", result)
	require.Len(t, alerts, 3)

	activity := alerts[0]
	assert.Equal(t, message.AlertHighActivity, activity.Type)
	assert.Equal(t, message.SeverityMedium, activity.Severity)
	assert.InDelta(t, highActivityConfidence, activity.Confidence, 1e-9)
	assert.Equal(t, "dev-1", activity.DeviceID)
	assert.Contains(t, activity.Metadata, "motion_features")
	assert.Contains(t, activity.Metadata, "detections")
	assert.Equal(t, message.ActivityLevelHigh, activity.Metadata["activity_level"])
	assert.Contains(t, activity.Metadata, "inference_time_ms")

	for i, concern := range result.Analysis.SafetyAlerts {
		alert := alerts[i+1]
		assert.Equal(t, message.AlertSafetyConcern, alert.Type)
		assert.Equal(t, message.SeverityHigh, alert.Severity)
		assert.InDelta(t, safetyConcernConfidence, alert.Confidence, 1e-9)
		assert.Equal(t, concern, alert.Description)
		assert.Contains(t, alert.Metadata, "detections")
		assert.Equal(t, concern, alert.Metadata["safety_alert"])
	}
}

func TestEvaluateVideoQuietScene(t *testing.T) {
	result := &message.VideoResult{
		Analysis: message.SceneAnalysis{ActivityLevel: message.ActivityLevelMedium},
	}

	assert.Empty(t, EvaluateVideo("dev-1", "sess-1", result))
	assert.Empty(t, EvaluateVideo("dev-1", "sess-1", nil))
}

func TestEvaluateVideoSafetyWithoutActivity(t *testing.T) {
	result := &message.VideoResult{
		Analysis: message.SceneAnalysis{
			ActivityLevel: message.ActivityLevelLow,
			SafetyAlerts:  []string{"Potentially dangerous object detected: scissors"},
		},
	}

	alerts := EvaluateVideo("dev-1", "sess-1", result)
	require.Len(t, alerts, 1)
	assert.Equal(t, message.AlertSafetyConcern, alerts[0].Type)
	assert.Equal(t, "Potentially dangerous object detected: scissors", alerts[0].Description)
}
