package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/capitalize-ai/storebot/internal/model"
)

var (
	// apiKeyPattern matches long API-key style tokens (sk-... and
	// similar). Replaced wholesale.
	apiKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)

	// clientSecretPattern matches a bare 32-hex client secret. Replaced
	// with a partially revealed form.
	clientSecretPattern = regexp.MustCompile(`\b[0-9a-f]{32}\b`)
)

// Postprocess masks secrets in raw model output and splits off the
// trailing JSON metadata block the model is instructed to emit. The
// returned text never contains a trailing brace-delimited object, even
// when the block is malformed: correctness of metadata is secondary to
// never showing raw JSON to a human.
func Postprocess(raw string) (string, model.Meta) {
	text := MaskSecrets(raw)
	text, meta := extractMeta(text)
	return strings.TrimSpace(text), meta
}

// MaskSecrets replaces API-key and client-secret style tokens in s.
func MaskSecrets(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "[PROTECTED]")
	s = clientSecretPattern.ReplaceAllStringFunc(s, func(m string) string {
		return m[:4] + "…" + m[len(m)-4:]
	})
	return s
}

// extractMeta locates the last well-formed JSON object anchored to the
// end of s, parses it into metadata, and returns the preceding text. On
// parse failure it still strips a trailing brace fragment so malformed
// JSON never leaks, and metadata falls back to defaults.
func extractMeta(s string) (string, model.Meta) {
	trimmed := strings.TrimRight(s, " \t\n\r")
	if !strings.HasSuffix(trimmed, "}") {
		return s, model.DefaultMeta()
	}

	start := lastObjectStart(trimmed)
	if start < 0 {
		return s, model.DefaultMeta()
	}

	fragment := trimmed[start:]
	meta := model.DefaultMeta()

	var parsed map[string]any
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		// Malformed block: strip from the last opening brace onward.
		if idx := strings.LastIndex(trimmed, "{"); idx >= 0 {
			return trimmed[:idx], meta
		}
		return trimmed, meta
	}

	if v, ok := parsed["next_panel"].(string); ok {
		meta.NextPanel = v
		delete(parsed, "next_panel")
	}
	if v, ok := parsed["selected_plan"].(string); ok {
		meta.SelectedPlan = v
		delete(parsed, "selected_plan")
	}
	if len(parsed) > 0 {
		meta.Extra = parsed
	}

	return trimmed[:start], meta
}

// lastObjectStart scans backward from the closing brace at the end of s
// and returns the index where the balanced object opens, or -1.
func lastObjectStart(s string) int {
	depth := 0
	inString := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if inString {
			if c == '"' && (i == 0 || s[i-1] != '\\') {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
