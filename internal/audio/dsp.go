package audio

import (
	"math"

	"elisa/pkg/audioconv"
)

// SmoothWidth is the window of the moving average applied after capture.
const SmoothWidth = 5

// Enhance collapses interleaved input to mono, peak normalizes it and
// applies a SmoothWidth moving average. The result has one sample per
// input frame.
func Enhance(in []float32, channels int) []float32 {
	x := audioconv.Downmix(in, channels)
	x = Normalize(x)
	return Smooth(x, SmoothWidth)
}

// Normalize scales in so that its largest absolute sample is 1. Silent
// input is returned unchanged.
func Normalize(in []float32) []float32 {
	var peak float64
	for _, v := range in {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}

	out := make([]float32, len(in))
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		copy(out, in)
		return out
	}

	for i, v := range in {
		out[i] = float32(float64(v) / peak)
	}
	return out
}

// Smooth convolves in with a box kernel of the given width and keeps the
// centered part of the result, treating samples outside in as zero.
func Smooth(in []float32, width int) []float32 {
	out := make([]float32, len(in))
	if width <= 1 {
		copy(out, in)
		return out
	}

	half := width / 2
	for i := range in {
		var sum float64
		for k := i - half; k < i-half+width; k++ {
			if k >= 0 && k < len(in) {
				sum += float64(in[k])
			}
		}
		out[i] = float32(sum / float64(width))
	}
	return out
}
