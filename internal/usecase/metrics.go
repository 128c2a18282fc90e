package usecase

import (
	"math"
	"strings"

	"voicecoach/internal/domain"
)

// FillerCounter counts filler-word occurrences in a transcript.
type FillerCounter interface {
	Count(text string) int
}

// ComputeMetrics derives the speaking metrics from a transcript and the
// seconds it covers. It is total: an empty transcript or a non-positive
// elapsed time yields zeros, never an error.
func ComputeMetrics(transcript string, elapsedSeconds int, fillers FillerCounter) domain.DerivedMetrics {
	words := len(strings.Fields(transcript))
	fillerCount := 0
	if fillers != nil && words > 0 {
		fillerCount = fillers.Count(transcript)
	}
	return domain.DerivedMetrics{
		Words:               words,
		WordsPerMinute:      perMinute(words, elapsedSeconds),
		FillerCount:         fillerCount,
		FillerRatePerMinute: perMinute(fillerCount, elapsedSeconds),
	}
}

func perMinute(n int, elapsedSeconds int) int {
	if elapsedSeconds <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(elapsedSeconds) * 60))
}
