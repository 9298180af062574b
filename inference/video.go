package inference

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	// Frame payloads arrive as encoded images; register the two
	// formats monitor devices send.
	_ "image/jpeg"
	_ "image/png"

	"github.com/YuvDwi/Cradle/message"
)

// Frames are reduced to a fixed luminance grid before the motion math,
// so frame size differences between devices do not change the scale of
// the features.
const (
	gridWidth  = 64
	gridHeight = 64

	// motionPixelThreshold marks a cell as moving, on the 0-255
	// luminance scale.
	motionPixelThreshold = 30

	// edgeGradientThreshold marks a cell as an edge.
	edgeGradientThreshold = 50
)

// Scene interpretation thresholds.
const (
	// babyAreaRatio: a person box covering less of the frame than this
	// is likely a baby rather than an adult.
	babyAreaRatio = 0.3

	// referenceFrameArea normalizes detection box areas; the detector
	// works on 640x640 inputs.
	referenceFrameArea = 640 * 640

	// highActivityAlertThreshold adds the motion safety alert on top
	// of the activity level.
	highActivityAlertThreshold = 0.15
)

// dangerousClasses are detector classes that raise a safety alert when
// they show up in frame.
var dangerousClasses = map[string]bool{
	"knife":        true,
	"scissors":     true,
	"fire hydrant": true,
	"car":          true,
	"truck":        true,
}

// luminanceGrid is one frame reduced to grayscale cells, row-major.
type luminanceGrid []float64

// decodeFrame decodes a JPEG or PNG payload into a luminance grid.
func decodeFrame(payload []byte) (luminanceGrid, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return rasterize(img), nil
}

// rasterize samples the image down to the grid using BT.601 luma.
func rasterize(img image.Image) luminanceGrid {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	grid := make(luminanceGrid, gridWidth*gridHeight)
	if w == 0 || h == 0 {
		return grid
	}

	for gy := 0; gy < gridHeight; gy++ {
		sy := bounds.Min.Y + gy*h/gridHeight
		for gx := 0; gx < gridWidth; gx++ {
			sx := bounds.Min.X + gx*w/gridWidth
			r, g, b, _ := img.At(sx, sy).RGBA()
			// Channels are 16-bit; 257 scales back to 0-255.
			grid[gy*gridWidth+gx] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
		}
	}
	return grid
}

// motionFeatures compares the current frame against the previous one.
// The first frame of a stream has no previous frame and reports zero
// motion.
func motionFeatures(current, previous luminanceGrid) message.MotionFeatures {
	if previous == nil {
		return message.MotionFeatures{}
	}

	var diffSum float64
	moving := 0
	for i := range current {
		d := math.Abs(current[i] - previous[i])
		diffSum += d
		if d > motionPixelThreshold {
			moving++
		}
	}

	n := float64(len(current))
	magnitude := diffSum / n
	ratio := float64(moving) / n
	density := edgeDensity(current)

	return message.MotionFeatures{
		MotionMagnitude: magnitude,
		MotionRatio:     ratio,
		EdgeDensity:     density,
		ActivityScore:   magnitude * ratio * density,
	}
}

// edgeDensity is the fraction of cells whose luminance gradient
// exceeds the edge threshold. A cheap stand-in for a Canny pass.
func edgeDensity(grid luminanceGrid) float64 {
	edges := 0
	for y := 0; y < gridHeight-1; y++ {
		for x := 0; x < gridWidth-1; x++ {
			i := y*gridWidth + x
			gx := grid[i+1] - grid[i]
			gy := grid[i+gridWidth] - grid[i]
			if math.Hypot(gx, gy) > edgeGradientThreshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(gridWidth*gridHeight)
}

// analyzeScene interprets detections and motion for the monitoring
// context. Dangerous-object alerts come out sorted by class name so
// repeated frames produce identical alert order; the high-motion alert
// always comes last.
func analyzeScene(detections []message.Detection, motion message.MotionFeatures) message.SceneAnalysis {
	analysis := message.SceneAnalysis{
		ActivityLevel: message.ActivityLevelLow,
		SafetyAlerts:  []string{},
		ObjectSummary: map[string]int{},
	}

	for _, d := range detections {
		analysis.ObjectSummary[d.ClassName]++
	}

	for _, d := range detections {
		if d.ClassName == "person" {
			analysis.PersonDetected = true
			if d.Area/referenceFrameArea < babyAreaRatio {
				analysis.BabyLikely = true
			}
		}
	}

	switch {
	case motion.ActivityScore > 0.1:
		analysis.ActivityLevel = message.ActivityLevelHigh
	case motion.ActivityScore > 0.05:
		analysis.ActivityLevel = message.ActivityLevelMedium
	}

	var dangerous []string
	for name := range analysis.ObjectSummary {
		if dangerousClasses[name] {
			dangerous = append(dangerous, name)
		}
	}
	sort.Strings(dangerous)
	for _, name := range dangerous {
		analysis.SafetyAlerts = append(analysis.SafetyAlerts,
			fmt.Sprintf("Potentially dangerous object detected: %s", name))
	}

	if motion.ActivityScore > highActivityAlertThreshold {
		analysis.SafetyAlerts = append(analysis.SafetyAlerts, "High activity level detected")
	}

	return analysis
}
