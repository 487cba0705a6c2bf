package kb

import (
	"strings"
	"unicode/utf8"
)

// DefaultContextLimit is the clinical reference budget in characters
const DefaultContextLimit = 30000

// documentMarker opens every clinical reference in the assembled context
const documentMarker = "--- DOCUMENT: "

// Truncate limits text to budget characters, cutting at the last document
// boundary, else the last blank line, else the last newline that fits.
// It reports whether anything was removed.
func Truncate(text string, budget int) (string, bool) {
	if budget <= 0 {
		budget = DefaultContextLimit
	}
	if utf8.RuneCountInString(text) <= budget {
		return text, false
	}

	prefix := text
	n := 0
	for i := range text {
		if n == budget {
			prefix = text[:i]
			break
		}
		n++
	}

	for _, sep := range []string{"\n" + documentMarker, "\n\n", "\n"} {
		if idx := strings.LastIndex(prefix, sep); idx > 0 {
			return strings.TrimRight(prefix[:idx], " \t\n"), true
		}
	}
	return prefix, true
}

func documentHeader(name string) string {
	return documentMarker + name + " ---"
}
