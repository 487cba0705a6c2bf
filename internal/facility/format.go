package facility

import (
	"fmt"
	"strings"

	"github.com/ppiankov/triage/internal/model"
)

// Format renders the facility addendum appended to a concluding reply
func Format(city string, ranked []model.Facility, recommended model.FacilityType) string {
	if city == "" || len(ranked) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📍 **STRUTTURE A / FACILITIES IN %s:**", strings.ToUpper(city))

	for _, f := range ranked {
		icon := "🏥"
		if f.Type == model.FacilityUrgentCare {
			icon = "🟢"
		}

		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s **%s**", icon, f.Name)
		if f.Type == recommended {
			b.WriteString(" (consigliato / recommended)")
		}
		fmt.Fprintf(&b, "\nIndirizzo: %s\nOrari: %s", f.Address, f.Hours)
		if f.MonitoringLink != "" {
			fmt.Fprintf(&b, " | 🔗 [Monitoraggio](%s)", f.MonitoringLink)
		}
	}

	return b.String()
}
