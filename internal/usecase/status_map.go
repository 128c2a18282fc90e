package usecase

import (
	"strings"
	"unicode"

	"voicecoach/internal/domain"
)

// MapBackendStatus reads the backend's free-form session_status string.
// Keywords are matched as whole words so "inactive" is not "active".
// Anything unrecognized maps to PhaseReady.
func MapBackendStatus(status string) domain.SessionPhase {
	tokens := strings.FieldsFunc(strings.ToLower(status), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	phase := domain.PhaseReady
	for _, token := range tokens {
		switch token {
		case "recording":
			return domain.PhaseListening
		case "active", "started":
			phase = domain.PhaseInProgress
		}
	}
	return phase
}
