package facility

import (
	"sort"
	"strings"

	"github.com/ppiankov/triage/internal/model"
)

// directionWords mark a user explicitly asking where to go
var directionWords = []string{"dove", "indirizzo", "indirizzi", "where", "address"}

// ResolveCity returns the city named by the most recent user turn that mentions
// exactly one known city. Turns naming several cities are ambiguous and skipped.
// Matching is case-insensitive, accent-insensitive and on whole words. The result
// is the entry of cities that matched, or "" when no turn qualifies.
func ResolveCity(turns []model.Turn, cities []string) string {
	type candidate struct {
		city   string
		folded string
	}
	candidates := make([]candidate, 0, len(cities))
	for _, c := range cities {
		if f := strings.TrimSpace(fold(c)); f != "" {
			candidates = append(candidates, candidate{city: c, folded: f})
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != model.RoleUser {
			continue
		}
		text := fold(turns[i].Text)

		var hits []cityHit
		for _, c := range candidates {
			for _, s := range wordSpans(text, c.folded) {
				hits = append(hits, cityHit{city: c.city, span: s})
			}
		}

		// "castel san pietro" also contains "san pietro": keep the longest name
		found := make(map[string]bool)
		for _, h := range outermost(hits) {
			found[h.city] = true
		}

		if len(found) == 1 {
			for city := range found {
				return city
			}
		}
	}
	return ""
}

type cityHit struct {
	city string
	span span
}

// outermost drops every hit that lies strictly inside a longer hit. Hits are
// swept by start offset while tracking the furthest-reaching span seen so far.
func outermost(hits []cityHit) []cityHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].span.start != hits[j].span.start {
			return hits[i].span.start < hits[j].span.start
		}
		return hits[i].span.end > hits[j].span.end
	})

	var out []cityHit
	var reach span
	for i, h := range hits {
		nested := i > 0 && (reach.end > h.span.end || (reach.end == h.span.end && reach.start < h.span.start))
		if !nested {
			out = append(out, h)
		}
		if i == 0 || h.span.end > reach.end {
			reach = h.span
		}
	}
	return out
}

// AskedForDirections reports whether text asks where a place is or for an address
func AskedForDirections(text string) bool {
	folded := fold(text)
	for _, w := range directionWords {
		if len(wordSpans(folded, w)) > 0 {
			return true
		}
	}
	return false
}
