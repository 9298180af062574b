package inference

import (
	"encoding/binary"
	"math"

	"github.com/YuvDwi/Cradle/message"
)

// Analysis parameters. These mirror the model sidecar's feature
// extractor so both engines report comparable numbers.
const (
	audioSampleRate = 16000
	frameLength     = 2048
	hopLength       = 512
	rolloffPercent  = 0.85
)

// c0Hz is the C0 reference pitch used to fold frequencies onto the 12
// chroma classes.
const c0Hz = 16.351597831287414

// decodeSamples reinterprets the payload as little-endian float32 PCM.
// Trailing bytes that do not fill a sample are ignored; NaN and Inf
// samples are zeroed so the feature math stays defined.
func decodeSamples(payload []byte) []float64 {
	n := len(payload) / 4
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		v := float64(math.Float32frombits(bits))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		samples[i] = v
	}
	return samples
}

// rmsEnergy is the root mean square of the whole signal.
func rmsEnergy(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// extractSpectralFeatures computes framewise spectral statistics over a
// Hann-windowed STFT with 2048-sample frames and a 512-sample hop.
// Signals shorter than one frame are zero-padded to a single frame.
func extractSpectralFeatures(samples []float64) message.SpectralFeatures {
	if len(samples) < frameLength {
		padded := make([]float64, frameLength)
		copy(padded, samples)
		samples = padded
	}

	window := hannWindow(frameLength)
	freqPerBin := float64(audioSampleRate) / float64(frameLength)

	var centroids, rolloffs, zcrs, chromaVals []float64

	buf := make([]float64, frameLength)
	for start := 0; start+frameLength <= len(samples); start += hopLength {
		frame := samples[start : start+frameLength]

		zcrs = append(zcrs, zeroCrossingRate(frame))

		for i := range buf {
			buf[i] = frame[i] * window[i]
		}
		mags := fftMagnitudes(buf)

		centroids = append(centroids, spectralCentroid(mags, freqPerBin))
		rolloffs = append(rolloffs, spectralRolloff(mags, freqPerBin))
		chromaVals = append(chromaVals, chromaVector(mags, freqPerBin)...)
	}

	centroidMean, centroidStd := meanStd(centroids)
	rolloffMean, rolloffStd := meanStd(rolloffs)
	zcrMean, zcrStd := meanStd(zcrs)
	chromaMean, chromaStd := meanStd(chromaVals)

	return message.SpectralFeatures{
		SpectralCentroidMean: centroidMean,
		SpectralCentroidStd:  centroidStd,
		ZCRMean:              zcrMean,
		ZCRStd:               zcrStd,
		SpectralRolloffMean:  rolloffMean,
		SpectralRolloffStd:   rolloffStd,
		ChromaMean:           chromaMean,
		ChromaStd:            chromaStd,
	}
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// zeroCrossingRate is the fraction of adjacent sample pairs whose sign
// differs.
func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame))
}

// spectralCentroid is the magnitude-weighted mean frequency of one
// frame. A silent frame has centroid zero.
func spectralCentroid(mags []float64, freqPerBin float64) float64 {
	var weighted, total float64
	for k, m := range mags {
		weighted += float64(k) * freqPerBin * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// spectralRolloff is the lowest frequency below which 85% of the
// frame's spectral magnitude sits.
func spectralRolloff(mags []float64, freqPerBin float64) float64 {
	var total float64
	for _, m := range mags {
		total += m
	}
	if total == 0 {
		return 0
	}
	target := rolloffPercent * total
	var cum float64
	for k, m := range mags {
		cum += m
		if cum >= target {
			return float64(k) * freqPerBin
		}
	}
	return float64(len(mags)-1) * freqPerBin
}

// chromaVector folds the magnitude spectrum onto the 12 pitch classes
// and scales the frame so its strongest class is 1.
func chromaVector(mags []float64, freqPerBin float64) []float64 {
	chroma := make([]float64, 12)
	for k := 1; k < len(mags); k++ {
		f := float64(k) * freqPerBin
		if f < c0Hz {
			continue
		}
		pc := int(math.Round(12*math.Log2(f/c0Hz))) % 12
		chroma[pc] += mags[k]
	}

	var max float64
	for _, v := range chroma {
		if v > max {
			max = v
		}
	}
	if max > 0 {
		for i := range chroma {
			chroma[i] /= max
		}
	}
	return chroma
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
