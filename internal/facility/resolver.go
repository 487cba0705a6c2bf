// Package facility picks the user's city and lists the matching care locations
// once a triage reply concludes.
package facility

import "github.com/ppiankov/triage/internal/model"

// Addendum is the facility section appended to a concluding reply. Text is
// empty when the triage is inconclusive or the city is unknown.
type Addendum struct {
	City        string
	Recommended model.FacilityType
	Facilities  []model.Facility
	Text        string
}

// Resolver is a pure function of the facility directory, the conversation and the latest reply
type Resolver struct {
	kb              *model.KnowledgeBase
	cities          []string
	addressRequests bool
}

// NewResolver creates a resolver over a loaded directory. addressRequests makes an
// explicit "where"/"address" question count as a conclusion.
func NewResolver(kb *model.KnowledgeBase, addressRequests bool) *Resolver {
	return &Resolver{
		kb:              kb,
		cities:          kb.Cities(),
		addressRequests: addressRequests,
	}
}

// Cities returns the known facility cities
func (r *Resolver) Cities() []string {
	return r.cities
}

// City resolves the user's city from the conversation
func (r *Resolver) City(conv model.Conversation) string {
	return ResolveCity(conv.UserTurns(), r.cities)
}

// Resolve builds the addendum for reply. conv must already contain the user turn
// that reply answers.
func (r *Resolver) Resolve(conv model.Conversation, reply model.GeneratedReply) Addendum {
	concluded := reply.Classification.Concluded
	if !concluded && r.addressRequests {
		concluded = AskedForDirections(conv.LastUserText())
	}
	if !concluded {
		return Addendum{}
	}

	city := r.City(conv)
	if city == "" {
		return Addendum{}
	}

	recommended := reply.Classification.Recommended
	if recommended != model.FacilityUrgentCare {
		recommended = model.FacilityEmergency
	}

	ranked := Rank(r.kb.FacilitiesIn(city), recommended)
	return Addendum{
		City:        city,
		Recommended: recommended,
		Facilities:  ranked,
		Text:        Format(city, ranked, recommended),
	}
}
