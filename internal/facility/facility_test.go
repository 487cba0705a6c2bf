package facility

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/triage/internal/model"
)

func ravennaKB() *model.KnowledgeBase {
	facilities := []model.Facility{
		{City: "ravenna", Name: "CAU Ravenna", Tag: "CAU", Address: "Via A", Hours: "9-20"},
		{City: "ravenna", Name: "PS Ravenna", Tag: "PS", Address: "Via B", Hours: "24h"},
		{City: "Forlì", Name: "CAU Forlì", Tag: "CAU", Address: "Via C", Hours: "8-20", MonitoringLink: "https://example.org/forli"},
		{City: "Cesena", Name: "PS Cesena", Tag: "PS", Address: "Via D", Hours: "24h"},
		{City: "Cesenatico", Name: "CAU Cesenatico", Tag: "CAU", Address: "Via E", Hours: "8-20"},
	}
	for i := range facilities {
		facilities[i].Type = model.ClassifyFacilityType(facilities[i].Tag)
	}
	return &model.KnowledgeBase{Facilities: facilities}
}

func conversation(userTexts ...string) model.Conversation {
	conv := model.NewConversation("test")
	for _, text := range userTexts {
		conv = conv.Append(model.RoleUser, text)
		conv = conv.Append(model.RoleAssistant, "ok")
	}
	return conv
}

func concludedReply(text string, recommended model.FacilityType) model.GeneratedReply {
	return model.GeneratedReply{
		Text: text,
		Classification: model.Classification{
			Concluded:   true,
			Recommended: recommended,
		},
	}
}

func TestResolve_RavennaUrgentCareFirst(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Sono a ravenna", "Ho la febbre da due giorni")

	add := r.Resolve(conv, concludedReply("Ti consiglio il CAU", model.FacilityUrgentCare))

	assert.Equal(t, "ravenna", add.City)
	require.Len(t, add.Facilities, 2)
	assert.Equal(t, "CAU Ravenna", add.Facilities[0].Name)
	assert.Equal(t, "PS Ravenna", add.Facilities[1].Name)

	cau := strings.Index(add.Text, "CAU Ravenna")
	ps := strings.Index(add.Text, "PS Ravenna")
	assert.True(t, cau >= 0 && ps > cau, "CAU must be listed before PS:\n%s", add.Text)
	assert.Contains(t, add.Text, "📍 **STRUTTURE A / FACILITIES IN RAVENNA:**")
	assert.Contains(t, add.Text, "🟢 **CAU Ravenna** (consigliato / recommended)\nIndirizzo: Via A\nOrari: 9-20")
	assert.Contains(t, add.Text, "🏥 **PS Ravenna**\nIndirizzo: Via B\nOrari: 24h")
}

func TestResolve_EmergencyFirst(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Abito a Ravenna")

	add := r.Resolve(conv, concludedReply("Ti consiglio il pronto soccorso", model.FacilityEmergency))

	require.Len(t, add.Facilities, 2)
	assert.Equal(t, "PS Ravenna", add.Facilities[0].Name)
	assert.Contains(t, add.Text, "🏥 **PS Ravenna** (consigliato / recommended)")
	assert.NotContains(t, add.Text, "CAU Ravenna** (consigliato")
}

func TestResolve_NoCityEmptyAddendum(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Ho mal di gola", "Da ieri")

	add := r.Resolve(conv, concludedReply("Ti consiglio il CAU", model.FacilityUrgentCare))
	assert.Equal(t, Addendum{}, add)
	assert.Empty(t, add.Text)
}

func TestResolve_InconclusiveEmptyAddendum(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Sono a Ravenna")

	add := r.Resolve(conv, model.GeneratedReply{Text: "Da quanto tempo hai la febbre?"})
	assert.Empty(t, add.Text)
}

func TestResolve_AddressRequestConcludes(t *testing.T) {
	conv := conversation("Sono a Ravenna", "Dove si trova il CAU?")
	reply := model.GeneratedReply{Text: "Ecco le sedi."}

	add := NewResolver(ravennaKB(), true).Resolve(conv, reply)
	assert.Equal(t, "ravenna", add.City)
	assert.NotEmpty(t, add.Text)

	add = NewResolver(ravennaKB(), false).Resolve(conv, reply)
	assert.Empty(t, add.Text)
}

func TestResolve_Idempotent(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Sono a Forlì")
	reply := concludedReply("I recommend urgent care (CAU)", model.FacilityUrgentCare)

	first := r.Resolve(conv, reply)
	second := r.Resolve(conv, reply)
	assert.Equal(t, first, second)
	assert.Contains(t, first.Text, " | 🔗 [Monitoraggio](https://example.org/forli)")
}

func TestResolve_ResetHidesPriorCity(t *testing.T) {
	r := NewResolver(ravennaKB(), true)
	conv := conversation("Sono a Ravenna")
	require.Equal(t, "ravenna", r.City(conv))

	conv = conv.Reset().Append(model.RoleUser, "Ho la tosse")
	assert.Equal(t, "", r.City(conv))
	assert.Empty(t, r.Resolve(conv, concludedReply("consiglio il CAU", model.FacilityUrgentCare)).Text)
}

func TestResolveCity_MostRecentUnambiguousWins(t *testing.T) {
	cities := ravennaKB().Cities()

	tests := []struct {
		name  string
		turns []string
		want  string
	}{
		{"single mention", []string{"sono a ravenna"}, "ravenna"},
		{"most recent wins", []string{"sono a ravenna", "ora sono a CESENA"}, "cesena"},
		{"ambiguous turn skipped", []string{"sono a ravenna", "lavoro tra cesena e forlì"}, "ravenna"},
		{"accent folded", []string{"sono a Forli"}, "forlì"},
		{"whole words only", []string{"vado a cesenatico"}, "cesenatico"},
		{"no partial match", []string{"ravennate di nascita"}, ""},
		{"nothing", []string{"ho la febbre"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := conversation(tt.turns...)
			assert.Equal(t, tt.want, ResolveCity(conv.UserTurns(), cities))
		})
	}
}

func TestResolveCity_IgnoresAssistantTurns(t *testing.T) {
	conv := model.NewConversation("x").
		Append(model.RoleUser, "sono a ravenna").
		Append(model.RoleAssistant, "Le sedi di Cesena sono chiuse")
	assert.Equal(t, "ravenna", ResolveCity(conv.Turns, []string{"ravenna", "cesena"}))
}

func TestResolveCity_NestedNames(t *testing.T) {
	cities := []string{"castel san pietro terme", "san pietro"}
	conv := conversation("abito a Castel San Pietro Terme")
	assert.Equal(t, "castel san pietro terme", ResolveCity(conv.Turns, cities))
}

func TestResolveCity_NestedNamesRepeated(t *testing.T) {
	cities := []string{"castel san pietro terme", "san pietro"}
	conv := conversation(strings.Repeat("castel san pietro terme, ", 200))
	assert.Equal(t, "castel san pietro terme", ResolveCity(conv.Turns, cities))

	conv = conversation(strings.Repeat("castel san pietro terme e san pietro ", 50))
	assert.Equal(t, "", ResolveCity(conv.Turns, cities), "a bare shorter name still counts as a second city")
}

func TestResolveCity_LongMessage(t *testing.T) {
	cities := []string{"ravenna", "cesena", "forlì", "bologna"}
	long := strings.Repeat("ravenna ", 8000)
	conv := conversation(long, strings.Repeat("ho la febbre ", 5000))

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.Equal(t, "ravenna", ResolveCity(conv.Turns, cities))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "city matching must stay linear in message length")
}

func TestResolveCity_SpellingVariantsCountOnce(t *testing.T) {
	kb := &model.KnowledgeBase{Facilities: []model.Facility{
		{City: "Forlì", Name: "CAU Forlì", Type: model.FacilityUrgentCare},
		{City: "Forli", Name: "PS Forli", Type: model.FacilityEmergency},
	}}

	require.Equal(t, []string{"forlì"}, kb.Cities())
	assert.Equal(t, "forlì", ResolveCity(conversation("sono a Forli").Turns, kb.Cities()))
	assert.Len(t, kb.FacilitiesIn("forli"), 2)

	add := NewResolver(kb, true).Resolve(conversation("sono a forlì"), concludedReply("vai al pronto soccorso", model.FacilityEmergency))
	require.Len(t, add.Facilities, 2)
	assert.Equal(t, "PS Forli", add.Facilities[0].Name)
}

func TestAskedForDirections(t *testing.T) {
	assert.True(t, AskedForDirections("Dove devo andare?"))
	assert.True(t, AskedForDirections("What's the address?"))
	assert.True(t, AskedForDirections("Mi dai l'indirizzo"))
	assert.False(t, AskedForDirections("Ho dolore dovunque"))
	assert.False(t, AskedForDirections("Somewhere else"))
}

func TestRank_PartitionAndStability(t *testing.T) {
	in := []model.Facility{
		{Name: "PS 1", Type: model.FacilityEmergency},
		{Name: "CAU 1", Type: model.FacilityUrgentCare},
		{Name: "Other 1", Type: model.FacilityOther},
		{Name: "CAU 2", Type: model.FacilityUrgentCare},
		{Name: "PS 2", Type: model.FacilityEmergency},
	}

	names := func(fs []model.Facility) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}

	assert.Equal(t, []string{"CAU 1", "CAU 2", "PS 1", "Other 1", "PS 2"},
		names(Rank(in, model.FacilityUrgentCare)))
	assert.Equal(t, []string{"PS 1", "Other 1", "PS 2", "CAU 1", "CAU 2"},
		names(Rank(in, model.FacilityEmergency)))

	// input untouched
	assert.Equal(t, "PS 1", in[0].Name)
}

func TestFormat_MarksOnlyRecommendedType(t *testing.T) {
	ranked := []model.Facility{
		{Name: "PS Lugo", Type: model.FacilityEmergency, Address: "Via F", Hours: "24h"},
		{Name: "Guardia Medica Lugo", Type: model.FacilityOther, Address: "Via G", Hours: "20-8"},
		{Name: "CAU Lugo", Type: model.FacilityUrgentCare, Address: "Via H", Hours: "8-20"},
	}
	const marker = " (consigliato / recommended)"

	text := Format("lugo", ranked, model.FacilityEmergency)
	assert.Contains(t, text, "**PS Lugo**"+marker)
	assert.NotContains(t, text, "**Guardia Medica Lugo**"+marker)
	assert.NotContains(t, text, "**CAU Lugo**"+marker)
	assert.Equal(t, 1, strings.Count(text, marker))

	text = Format("lugo", ranked, model.FacilityUrgentCare)
	assert.Contains(t, text, "**CAU Lugo**"+marker)
	assert.Equal(t, 1, strings.Count(text, marker))
}

func TestFormat_Empty(t *testing.T) {
	assert.Empty(t, Format("", nil, model.FacilityUrgentCare))
	assert.Empty(t, Format("ravenna", nil, model.FacilityUrgentCare))
}
