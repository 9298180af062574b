package inference

import "github.com/YuvDwi/Cradle/message"

// Alert rules. Pure functions of one result with no memory: a
// sustained cry emits one alert per inference pass, and any
// deduplication belongs to the consumer.

// Cry severity scales with model confidence.
const (
	cryHighConfidence   = 0.9
	cryMediumConfidence = 0.7
)

// Fixed confidences attached to video alerts.
const (
	highActivityConfidence  = 0.8
	safetyConcernConfidence = 0.9
)

// EvaluateAudio emits a cry_detected alert when the result says the
// baby is crying.
func EvaluateAudio(deviceID, sessionID string, result *message.AudioResult) []message.AlertEvent {
	if result == nil || !result.IsCrying {
		return nil
	}

	severity := message.SeverityLow
	switch {
	case result.Confidence > cryHighConfidence:
		severity = message.SeverityHigh
	case result.Confidence > cryMediumConfidence:
		severity = message.SeverityMedium
	}

	alert := message.NewAlertEvent(message.AlertCryDetected, severity, result.Confidence, deviceID, sessionID)
	alert.Metadata = map[string]any{
		"audio_features":    result.SpectralFeatures,
		"model_used":        result.ModelUsed,
		"inference_time_ms": result.InferenceTimeMs,
	}
	return []message.AlertEvent{alert}
}

// EvaluateVideo emits a high_activity alert when motion is high and
// one safety_concern alert per safety string in the analysis. One
// result can produce several alerts.
func EvaluateVideo(deviceID, sessionID string, result *message.VideoResult) []message.AlertEvent {
	if result == nil {
		return nil
	}

	var alerts []message.AlertEvent

	if result.Analysis.ActivityLevel == message.ActivityLevelHigh {
		alert := message.NewAlertEvent(message.AlertHighActivity, message.SeverityMedium, highActivityConfidence, deviceID, sessionID)
		alert.Metadata = map[string]any{
			"motion_features":   result.MotionFeatures,
			"detections":        result.Detections,
			"activity_level":    result.Analysis.ActivityLevel,
			"inference_time_ms": result.InferenceTimeMs,
		}
		alerts = append(alerts, alert)
	}

	for _, concern := range result.Analysis.SafetyAlerts {
		alert := message.NewAlertEvent(message.AlertSafetyConcern, message.SeverityHigh, safetyConcernConfidence, deviceID, sessionID)
		alert.Description = concern
		alert.Metadata = map[string]any{
			"detections":   result.Detections,
			"safety_alert": concern,
		}
		alerts = append(alerts, alert)
	}

	return alerts
}
