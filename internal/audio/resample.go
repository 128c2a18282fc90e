package audio

import (
	"encoding/binary"
	"math"

	"voicecoach/internal/domain"
)

// Convert resamples float samples captured at inputRate to
// domain.TargetSampleRate and quantizes them to int16.
//
// Rates above the target are decimated by averaging each input window.
// Rates at or below the target are only quantized.
func Convert(samples []float32, inputRate int) []int16 {
	if len(samples) == 0 {
		return []int16{}
	}
	if inputRate <= domain.TargetSampleRate {
		out := make([]int16, len(samples))
		for i, s := range samples {
			out[i] = quantize(float64(s))
		}
		return out
	}

	ratio := float64(inputRate) / float64(domain.TargetSampleRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]int16, 0, outLen)

	offset := 0
	for i := 0; i < outLen; i++ {
		next := int(math.Round(float64(i+1) * ratio))
		if next > len(samples) {
			next = len(samples)
		}
		if next <= offset {
			if offset >= len(samples) {
				break
			}
			next = offset + 1
		}

		var sum float64
		for _, s := range samples[offset:next] {
			sum += clamp(float64(s))
		}
		out = append(out, quantize(sum/float64(next-offset)))
		offset = next
	}
	return out
}

// PCM16LE packs int16 samples as little-endian bytes.
func PCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func quantize(s float64) int16 {
	s = clamp(s)
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

func clamp(s float64) float64 {
	switch {
	case math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}
