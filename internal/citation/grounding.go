package citation

import (
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// refusalPhrases mark an answer that declined to answer from missing context.
var refusalPhrases = []string{
	"could not find",
	"no information",
	"not found in",
	"don't have information",
	"no relevant",
}

// shortRefusalLength is the length under which an uncited answer with no
// context is presumed to be a refusal.
const shortRefusalLength = 100

// IsRefusal reports whether answer contains a refusal phrase.
func IsRefusal(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range refusalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// HasCitationMarker reports whether answer contains an inline [Source ...] marker.
func HasCitationMarker(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "[source:") || strings.Contains(lower, "[source ")
}

// Validate heuristically checks that answer is grounded in citations.
// It is advisory: callers surface the flag, they do not block the answer.
func Validate(answer string, citations []models.Citation) (isGrounded, noContextFound bool) {
	refusal := IsRefusal(answer)
	noContextFound = len(citations) == 0 || refusal

	switch {
	case refusal:
		isGrounded = true
	case len(citations) > 0 && HasCitationMarker(answer):
		isGrounded = true
	case len(citations) == 0 && len([]rune(answer)) < shortRefusalLength:
		isGrounded = true
	}
	return isGrounded, noContextFound
}
