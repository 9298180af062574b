package inference

import (
	"context"

	"github.com/YuvDwi/Cradle/message"
)

// Model identifiers reported in results. The sidecar reports onnx or
// yolo when its models are loaded; the fallback paths report heuristic
// and basic.
const (
	ModelONNX      = "onnx"
	ModelHeuristic = "heuristic"
	ModelYOLO      = "yolo"
	ModelBasic     = "basic"
)

// Engine scores raw media payloads. Implementations must be safe for
// concurrent use; the coordinator calls them from multiple workers.
type Engine interface {
	AnalyzeAudio(ctx context.Context, payload []byte) (*message.AudioResult, error)
	AnalyzeVideo(ctx context.Context, payload []byte) (*message.VideoResult, error)
}
