package facility

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/triage/internal/model"
)

func fold(s string) string {
	return model.FoldName(s)
}

type span struct {
	start, end int
}

// wordSpans returns every occurrence of term in text that starts and ends on a
// word boundary. Both arguments must already be folded.
func wordSpans(text, term string) []span {
	if term == "" {
		return nil
	}
	var spans []span
	offset := 0
	for {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			spans = append(spans, span{start, end})
		}
		offset = start + 1
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
