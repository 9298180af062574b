package inference

import "math"

// fftMagnitudes returns the magnitude spectrum of a frame, bins 0
// through n/2 inclusive, computed with an iterative radix-2 FFT. The
// frame length must be a power of two.
func fftMagnitudes(frame []float64) []float64 {
	n := len(frame)
	re := make([]float64, n)
	im := make([]float64, n)
	copy(re, frame)

	// Bit-reversal permutation. The imaginary part is still zero, so
	// only the real part needs swapping.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angle := -2 * math.Pi / float64(size)
		stepRe := math.Cos(angle)
		stepIm := math.Sin(angle)
		for start := 0; start < n; start += size {
			wRe, wIm := 1.0, 0.0
			for k := 0; k < half; k++ {
				i := start + k
				j := i + half
				tRe := re[j]*wRe - im[j]*wIm
				tIm := re[j]*wIm + im[j]*wRe
				re[j] = re[i] - tRe
				im[j] = im[i] - tIm
				re[i] += tRe
				im[i] += tIm
				wRe, wIm = wRe*stepRe-wIm*stepIm, wRe*stepIm+wIm*stepRe
			}
		}
	}

	mags := make([]float64, n/2+1)
	for k := range mags {
		mags[k] = math.Hypot(re[k], im[k])
	}
	return mags
}
