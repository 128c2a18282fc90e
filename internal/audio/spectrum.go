package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const maxSpectrumWindow = 1024

// Buckets returns n frequency-magnitude buckets in [0, 1] for a block,
// suitable for a level/bar display. It returns nil when there is nothing
// to analyze.
func Buckets(block []float32, n int) []float64 {
	if n <= 0 {
		return nil
	}
	size := 1
	for size*2 <= len(block) && size*2 <= maxSpectrumWindow {
		size *= 2
	}
	if size < 2 {
		return nil
	}

	windowed := make([]float64, size)
	for i := range windowed {
		// Hann window.
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
		windowed[i] = clamp(float64(block[i])) * w
	}
	data := fourier.NewFFT(size).Coefficients(nil, windowed)

	bins := size / 2
	out := make([]float64, n)
	for b := 0; b < n; b++ {
		lo := 1 + b*(bins-1)/n
		hi := 1 + (b+1)*(bins-1)/n
		if hi <= lo {
			hi = lo + 1
		}
		if hi > bins {
			hi = bins
		}
		if lo >= hi {
			continue
		}
		var sum float64
		for k := lo; k < hi; k++ {
			sum += cmplx.Abs(data[k])
		}
		level := sum / float64(hi-lo) / float64(bins) * 4
		out[b] = math.Min(level, 1)
	}
	return out
}
