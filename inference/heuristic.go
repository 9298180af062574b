package inference

import (
	"context"
	"sync"
	"time"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/message"
)

// Cry scoring thresholds. Each matched signal adds its weight to the
// score; a score above cryScoreThreshold means crying.
const (
	cryCentroidMean = 2000.0
	cryZCRMean      = 0.1
	cryCentroidStd  = 500.0
	cryRMSEnergy    = 0.05

	cryScoreThreshold = 0.6
)

// HeuristicEngine reproduces the model sidecar's fallback scoring
// locally. No models are loaded: audio is scored from spectral
// features, video reports motion and scene analysis with no object
// detections. Good enough for development and tests, not a substitute
// for the real models.
type HeuristicEngine struct {
	mu         sync.Mutex
	prevFrame  luminanceGrid
	frameCount int
}

var _ Engine = (*HeuristicEngine)(nil)

// NewHeuristicEngine creates an engine with no frame history.
func NewHeuristicEngine() *HeuristicEngine {
	return &HeuristicEngine{}
}

// AnalyzeAudio scores the payload as little-endian float32 PCM.
func (e *HeuristicEngine) AnalyzeAudio(_ context.Context, payload []byte) (*message.AudioResult, error) {
	start := time.Now()

	samples := decodeSamples(payload)
	features := extractSpectralFeatures(samples)

	score := 0.0
	// High-pitched sound, typical of crying
	if features.SpectralCentroidMean > cryCentroidMean {
		score += 0.3
	}
	// Irregular signal
	if features.ZCRMean > cryZCRMean {
		score += 0.2
	}
	// Large pitch variability
	if features.SpectralCentroidStd > cryCentroidStd {
		score += 0.2
	}
	// Loud enough to matter
	if rmsEnergy(samples) > cryRMSEnergy {
		score += 0.3
	}

	return &message.AudioResult{
		IsCrying:         score > cryScoreThreshold,
		Confidence:       score,
		InferenceTimeMs:  time.Since(start).Seconds() * 1000,
		SpectralFeatures: features,
		AudioDurationSec: float64(len(samples)) / audioSampleRate,
		ModelUsed:        ModelHeuristic,
	}, nil
}

// AnalyzeVideo analyzes one encoded frame against the previous one.
// Frame numbering and motion state are per engine, so one engine
// instance tracks one stream.
func (e *HeuristicEngine) AnalyzeVideo(_ context.Context, payload []byte) (*message.VideoResult, error) {
	start := time.Now()

	grid, err := decodeFrame(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "HeuristicEngine", "AnalyzeVideo", "decode frame")
	}

	e.mu.Lock()
	e.frameCount++
	frameNumber := e.frameCount
	motion := motionFeatures(grid, e.prevFrame)
	e.prevFrame = grid
	e.mu.Unlock()

	detections := []message.Detection{}

	return &message.VideoResult{
		FrameNumber:     frameNumber,
		Detections:      detections,
		MotionFeatures:  motion,
		Analysis:        analyzeScene(detections, motion),
		InferenceTimeMs: time.Since(start).Seconds() * 1000,
		ModelUsed:       ModelBasic,
	}, nil
}
