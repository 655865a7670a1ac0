// Package sanitize cleans inbound user text and post-processes raw model
// output before it reaches the end user.
package sanitize

import (
	"strings"
	"unicode"
)

const (
	// MaxInputLen is the hard ceiling on inbound message length. Text
	// beyond it is truncated with a visible marker.
	MaxInputLen = 3000

	// gibberishLen is the length beyond which text with no whitespace and
	// no CJK characters is treated as meaningless flood.
	gibberishLen = 50

	// repeatThreshold is the repeat count at which a single-rune message
	// is treated as meaningless.
	repeatThreshold = 10

	truncationMarker = "…(訊息過長已截斷)"
)

// CheckInput sanitizes raw user text. It returns the (possibly truncated)
// text, whether the text is meaningless and should short-circuit to a
// deflection reply, and whether the text was filtered (truncated).
//
// Prompt-injection phrasings are deliberately not stripped here; they are
// neutralized by the defense preamble prepended to every system prompt.
func CheckInput(text string) (clean string, meaningless bool, filtered bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", true, false
	}

	if isRepeatedRune(trimmed) {
		return trimmed, true, false
	}

	if len([]rune(trimmed)) > gibberishLen && !strings.ContainsFunc(trimmed, unicode.IsSpace) && !containsCJK(trimmed) {
		return trimmed, true, false
	}

	if len([]rune(trimmed)) > MaxInputLen {
		runes := []rune(trimmed)
		return string(runes[:MaxInputLen]) + truncationMarker, false, true
	}

	return trimmed, false, false
}

// isRepeatedRune reports whether s is one rune repeated repeatThreshold
// or more times.
func isRepeatedRune(s string) bool {
	runes := []rune(s)
	if len(runes) < repeatThreshold {
		return false
	}
	first := runes[0]
	for _, r := range runes[1:] {
		if r != first {
			return false
		}
	}
	return true
}

// containsCJK reports whether s contains any CJK character.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
