package agent

import (
	"strings"
	"unicode"

	"github.com/facebuddy/facebuddy/internal/constants"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeTranscript lowercases and strips diacritics so "Fâce Buddy" and
// "face buddy" compare equal.
func normalizeTranscript(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.ToLower(result)
}

// IsTriggered reports whether a transcript addresses the agent, that is it
// contains both wake words anywhere.
func IsTriggered(transcript string) bool {
	n := normalizeTranscript(transcript)
	return strings.Contains(n, constants.TriggerWordFace) && strings.Contains(n, constants.TriggerWordBuddy)
}
