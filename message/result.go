package message

// SpectralFeatures summarizes the frequency-domain characteristics of
// an audio window. All values are means/standard deviations over the
// analysis frames of a single chunk.
type SpectralFeatures struct {
	SpectralCentroidMean float64 `json:"spectral_centroid_mean"`
	SpectralCentroidStd  float64 `json:"spectral_centroid_std"`
	ZCRMean              float64 `json:"zcr_mean"`
	ZCRStd               float64 `json:"zcr_std"`
	SpectralRolloffMean  float64 `json:"spectral_rolloff_mean"`
	SpectralRolloffStd   float64 `json:"spectral_rolloff_std"`
	ChromaMean           float64 `json:"chroma_mean"`
	ChromaStd            float64 `json:"chroma_std"`
}

// AudioResult is the outcome of cry detection on one audio chunk.
type AudioResult struct {
	IsCrying         bool             `json:"is_crying"`
	Confidence       float64          `json:"confidence"`
	InferenceTimeMs  float64          `json:"inference_time_ms"`
	SpectralFeatures SpectralFeatures `json:"spectral_features"`
	AudioDurationSec float64          `json:"audio_duration_sec"`
	ModelUsed        string           `json:"model_used"`
}

// Detection is a single detected object in a video frame. BBox is
// [x1, y1, x2, y2] in pixel coordinates; Center is the box midpoint.
type Detection struct {
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	Center     [2]float64 `json:"center"`
	Area       float64    `json:"area"`
}

// MotionFeatures measures frame-to-frame change for a video chunk.
// ActivityScore is the product of the three components and drives the
// activity level classification.
type MotionFeatures struct {
	MotionMagnitude float64 `json:"motion_magnitude"`
	MotionRatio     float64 `json:"motion_ratio"`
	EdgeDensity     float64 `json:"edge_density"`
	ActivityScore   float64 `json:"activity_score"`
}

// Activity levels assigned by scene analysis.
const (
	ActivityLevelLow    = "low"
	ActivityLevelMedium = "medium"
	ActivityLevelHigh   = "high"
)

// SceneAnalysis interprets raw detections and motion for the nursery
// monitoring context.
type SceneAnalysis struct {
	PersonDetected bool           `json:"person_detected"`
	BabyLikely     bool           `json:"baby_likely"`
	ActivityLevel  string         `json:"activity_level"`
	SafetyAlerts   []string       `json:"safety_alerts"`
	ObjectSummary  map[string]int `json:"object_summary"`
}

// VideoResult is the outcome of object detection and motion analysis
// on one video frame.
type VideoResult struct {
	FrameNumber     int            `json:"frame_number"`
	Detections      []Detection    `json:"detections"`
	MotionFeatures  MotionFeatures `json:"motion_features"`
	Analysis        SceneAnalysis  `json:"analysis"`
	InferenceTimeMs float64        `json:"inference_time_ms"`
	ModelUsed       string         `json:"model_used"`
}
