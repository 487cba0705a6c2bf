package dialogue

import (
	"fmt"
	"strings"

	"github.com/ppiankov/triage/internal/model"
)

const (
	// rolePrompt opens every generation request
	rolePrompt = "Sei un infermiere di triage esperto del servizio sanitario dell'Emilia-Romagna."

	// languageRules make the reply mirror the user's language
	languageRules = `### 1. REGOLE LINGUA (FONDAMENTALE):
- Rileva la lingua dell'ultimo messaggio del PAZIENTE.
- Se scrive in INGLESE -> RISPONDI SEMPRE IN INGLESE.
- Se scrive in ITALIANO -> RISPONDI SEMPRE IN ITALIANO.
- Non cambiare lingua a caso.`

	// sequentialProtocol enforces one question per reply
	sequentialProtocol = `### 2. PROTOCOLLO SEQUENZIALE (NON FARE LISTE):
Devi fare domande UNA ALLA VOLTA.
- STEP A (Città): se non sai in che città si trova il paziente, chiedilo e non chiedere altro.
- STEP B (Clinica): identifica il dato mancante più importante secondo il protocollo e fai SOLO QUELLA domanda.
  Se offri opzioni di risposta, usa lettere (A, B, C) solo per quella domanda.
- Non rivelare la decisione finale prima di aver raccolto i dati necessari.
- Non chiedere mai dati che il paziente ha già fornito (età, città, sintomo).`

	// painRule caps questioning for acute pain
	painRule = `### 3. DOLORE ACUTO:
- Per dolore toracico, addominale o sintomi acuti hai al massimo 2 domande per capire la gravità.
- Se dopo 2 risposte il quadro non è chiaramente lieve, consiglia il Pronto Soccorso o il 118.`

	// decisionRule pins the trigger phrases the resolver depends on
	decisionRule = `### 4. DECISIONE:
Appena capisci se il caso è da CAU o da Pronto Soccorso, fermati e dai il verdetto usando
ESATTAMENTE una di queste frasi:
- "Ti consiglio di recarti al CAU" / "I recommend going to the CAU (urgent care)"
- "Ti consiglio di recarti al Pronto Soccorso" / "I recommend going to the emergency room"
Sii conciso. Se consigli una struttura, usa solo quelle in elenco.`

	// facilitiesHeader introduces the allowed facility list
	facilitiesHeader = "### STRUTTURE AMMESSE (non consigliare MAI posti non in lista):"

	// noFacilities replaces the list when the directory is empty
	noFacilities = "Elenco sedi non disponibile: non nominare strutture specifiche."

	closingPrompt = "Rispondi ora al PAZIENTE."
)

// FallbackReply is returned whenever generation fails or yields nothing. It
// steers toward care in both languages and never exposes error detail.
const FallbackReply = "⚠️ Non riesco a completare la valutazione in questo momento. " +
	"Per sicurezza ti consiglio di recarti al CAU più vicino oppure, se i sintomi sono intensi o peggiorano, " +
	"al Pronto Soccorso o di chiamare il 118.\n\n" +
	"⚠️ I cannot complete the assessment right now. To be safe, I recommend going to the nearest " +
	"urgent care center (CAU) or, if symptoms are severe or getting worse, the emergency room or call 118."

// BuildPrompt composes the single instruction block sent to the generator
func BuildPrompt(conv model.Conversation, protocol, clinicalContext string, facilities []model.Facility) string {
	var b strings.Builder

	b.WriteString(rolePrompt)
	b.WriteString("\n\nSTORICO CONVERSAZIONE:\n")
	b.WriteString(conv.Transcript())

	for _, section := range []string{languageRules, sequentialProtocol, painRule, decisionRule} {
		b.WriteString("\n")
		b.WriteString(section)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(facilitiesHeader)
	b.WriteString("\n")
	if len(facilities) == 0 {
		b.WriteString(noFacilities)
		b.WriteString("\n")
	}
	for _, f := range facilities {
		fmt.Fprintf(&b, "- Città: %s | Nome: %s (%s) | Indirizzo: %s | Orari: %s\n",
			f.City, f.Name, f.Tag, f.Address, f.Hours)
	}

	if strings.TrimSpace(protocol) != "" {
		b.WriteString("\n### DATI PROTOCOLLO:\n")
		b.WriteString(protocol)
		b.WriteString("\n")
	}

	if strings.TrimSpace(clinicalContext) != "" {
		b.WriteString("\n### RIFERIMENTI CLINICI:\n")
		b.WriteString(clinicalContext)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(closingPrompt)
	return b.String()
}
