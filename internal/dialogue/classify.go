package dialogue

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/triage/internal/model"
)

// ConclusionKeywords are the trigger phrases that mark a concluding reply
var ConclusionKeywords = []string{
	"indicato", "consiglio", "recati", "vai al",
	"recommend", "go to", "suggest", "emergency room", "pronto soccorso",
}

// emergencyPhrases veto an urgent-care recommendation
var emergencyPhrases = []string{"pronto soccorso", "emergency room"}

var cauWord = regexp.MustCompile(`\bcau\b`)

// Classifier reads a generated reply into a machine-readable decision
type Classifier interface {
	Classify(text string) model.Classification
}

// Structured is a Classifier that asks the generator for an explicit decision
// line and removes it before the reply is shown
type Structured interface {
	Classifier
	Instruction() string
	Clean(text string) string
}

// NewClassifier returns the classifier registered under name
func NewClassifier(name string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "keyword":
		return KeywordClassifier{}, nil
	case "tagged":
		return TaggedClassifier{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier: %s (supported: keyword, tagged)", name)
	}
}

// KeywordClassifier sniffs trigger phrases in free text
type KeywordClassifier struct{}

// Classify marks the reply concluded when it contains a trigger phrase, and
// recommends urgent care only when "CAU" appears without an emergency phrase
func (KeywordClassifier) Classify(text string) model.Classification {
	lower := strings.ToLower(text)

	c := model.Classification{Recommended: model.FacilityEmergency}
	for _, kw := range ConclusionKeywords {
		if strings.Contains(lower, kw) {
			c.Concluded = true
			break
		}
	}

	if cauWord.MatchString(lower) && !containsAny(lower, emergencyPhrases) {
		c.Recommended = model.FacilityUrgentCare
	}
	return c
}

// decisionLine matches "ESITO: CAU", "DECISION: PS", "decisione: continua" and similar
var decisionLine = regexp.MustCompile(`(?im)^[ \t*_]*(?:esito|decisione|decision)[ \t*_]*:[ \t*_]*([a-z0-9 ]+?)[ \t*_.]*$`)

// TaggedClassifier reads a structured decision line and falls back to keywords
type TaggedClassifier struct{}

// Instruction is appended to the prompt so the generator emits the decision line
func (TaggedClassifier) Instruction() string {
	return "### FORMATO DECISIONE:\n" +
		"Termina SEMPRE la risposta con una riga separata:\n" +
		"ESITO: CAU | ESITO: PS | ESITO: CONTINUA\n" +
		"(CONTINUA se stai ancora raccogliendo dati)."
}

// Classify uses the last recognised decision line when present
func (TaggedClassifier) Classify(text string) model.Classification {
	matches := decisionLine.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if c, ok := decisionValue(matches[i][1]); ok {
			return c
		}
	}
	return KeywordClassifier{}.Classify(text)
}

// Clean removes decision lines from the text shown to the user. A line such as
// "Decisione: ti consiglio il CAU" is prose and stays.
func (TaggedClassifier) Clean(text string) string {
	cleaned := decisionLine.ReplaceAllStringFunc(text, func(line string) string {
		m := decisionLine.FindStringSubmatch(line)
		if m == nil {
			return line
		}
		if _, ok := decisionValue(m[1]); ok {
			return ""
		}
		return line
	})
	return strings.TrimSpace(cleaned)
}

func decisionValue(value string) (model.Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "CAU", "URGENT CARE":
		return model.Classification{Concluded: true, Recommended: model.FacilityUrgentCare}, true
	case "PS", "PRONTO SOCCORSO", "ER", "EMERGENCY", "EMERGENCY ROOM", "118":
		return model.Classification{Concluded: true, Recommended: model.FacilityEmergency}, true
	case "CONTINUA", "CONTINUE", "NONE", "NESSUNO":
		return model.Classification{Recommended: model.FacilityEmergency}, true
	default:
		return model.Classification{}, false
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
