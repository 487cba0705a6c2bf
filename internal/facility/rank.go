package facility

import "github.com/ppiankov/triage/internal/model"

// Rank orders facilities so that the recommended side comes first. When urgent
// care is recommended, CAU facilities lead; otherwise every non-CAU facility
// leads. Relative order within each side is preserved.
func Rank(facilities []model.Facility, recommended model.FacilityType) []model.Facility {
	ranked := make([]model.Facility, 0, len(facilities))
	var rest []model.Facility
	for _, f := range facilities {
		if onRecommendedSide(f, recommended) {
			ranked = append(ranked, f)
		} else {
			rest = append(rest, f)
		}
	}
	return append(ranked, rest...)
}

func onRecommendedSide(f model.Facility, recommended model.FacilityType) bool {
	isUrgentCare := f.Type == model.FacilityUrgentCare
	if recommended == model.FacilityUrgentCare {
		return isUrgentCare
	}
	return !isUrgentCare
}
