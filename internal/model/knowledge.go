package model

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultEmergencyMessage is used when the red-flag document carries no message
const DefaultEmergencyMessage = "CHIAMA IL 118 / CALL 118 (emergency services)"

// RedFlagRule is a group of keywords that each indicate a potential emergency.
// Keywords are stored lower-cased and non-empty.
type RedFlagRule struct {
	Name     string   `json:"name,omitempty"`
	Keywords []string `json:"keywords"`
}

// RedFlagSet is the loaded red-flag document
type RedFlagSet struct {
	Rules            []RedFlagRule `json:"red_flags"`
	EmergencyMessage string        `json:"emergency_message"`
}

// KeywordCount returns the number of keywords across all rules
func (s RedFlagSet) KeywordCount() int {
	n := 0
	for _, r := range s.Rules {
		n += len(r.Keywords)
	}
	return n
}

// FacilityType classifies a care location by acuity
type FacilityType string

const (
	FacilityUrgentCare FacilityType = "urgent_care" // CAU
	FacilityEmergency  FacilityType = "emergency"   // PS / ER
	FacilityOther      FacilityType = "other"
)

// ClassifyFacilityType maps a raw directory tag ("CAU", "PS pediatrico", ...) to a FacilityType
func ClassifyFacilityType(tag string) FacilityType {
	t := strings.ToUpper(tag)
	switch {
	case strings.Contains(t, "CAU"):
		return FacilityUrgentCare
	case strings.Contains(t, "PS"), strings.Contains(t, "PRONTO SOCCORSO"):
		return FacilityEmergency
	default:
		return FacilityOther
	}
}

// Facility is one care location from the directory
type Facility struct {
	Name           string       `json:"nome"`
	City           string       `json:"citta"`
	Tag            string       `json:"tipo"`
	Type           FacilityType `json:"-"`
	Address        string       `json:"indirizzo"`
	Hours          string       `json:"orari"`
	MonitoringLink string       `json:"link_monitoraggio,omitempty"`
}

// KnowledgeBase holds the immutable resources loaded at startup.
// It is shared read-only across sessions.
type KnowledgeBase struct {
	RedFlags        RedFlagSet
	Protocol        string // indented JSON, forwarded verbatim
	ClinicalContext string // already truncated to the configured budget
	Facilities      []Facility
}

// FoldName lower-cases s and strips diacritics so "Forlì" and "forli" compare equal
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Cities returns the distinct facility cities, lower-cased and sorted. Spellings
// that differ only in case or accents count once; the first one seen is kept.
func (kb *KnowledgeBase) Cities() []string {
	seen := make(map[string]bool)
	var cities []string
	for _, f := range kb.Facilities {
		c := strings.ToLower(strings.TrimSpace(f.City))
		key := FoldName(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		cities = append(cities, c)
	}
	sort.Strings(cities)
	return cities
}

// FacilitiesIn returns the facilities in city, ignoring case and accents, in directory order
func (kb *KnowledgeBase) FacilitiesIn(city string) []Facility {
	want := FoldName(strings.TrimSpace(city))
	var out []Facility
	for _, f := range kb.Facilities {
		if FoldName(strings.TrimSpace(f.City)) == want {
			out = append(out, f)
		}
	}
	return out
}
