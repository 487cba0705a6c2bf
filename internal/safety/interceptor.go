// Package safety implements the red-flag interception that runs before any generation.
//
// Matching is a case-insensitive substring test of each configured keyword against the
// current utterance only. Earlier turns are never rescanned, so an emergency is scoped to
// the turn that raised it.
package safety

import (
	"fmt"
	"strings"

	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
	"go.uber.org/zap"
)

// Check returns an alert for the first rule keyword contained in utterance, or nil
func Check(utterance string, rules model.RedFlagSet) *model.EmergencyAlert {
	text := strings.ToLower(utterance)
	for _, rule := range rules.Rules {
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(kw)
			// An empty keyword would match every utterance.
			if kw == "" {
				continue
			}
			if strings.Contains(text, kw) {
				msg := rules.EmergencyMessage
				if strings.TrimSpace(msg) == "" {
					msg = model.DefaultEmergencyMessage
				}
				return &model.EmergencyAlert{
					Keyword: kw,
					Rule:    rule.Name,
					Message: msg,
				}
			}
		}
	}
	return nil
}

// FormatAlert renders the emergency reply shown to the user
func FormatAlert(alert *model.EmergencyAlert) string {
	return fmt.Sprintf("🚨 **ALLERTA SICUREZZA / SAFETY ALERT** 🚨\n\n%s\n\n*Chiama subito il 118 / Call 118 immediately.*\n\n*(Rilevato/Detected: %s)*",
		alert.Message, alert.Keyword)
}

// Interceptor binds a rule set and a logger
type Interceptor struct {
	rules  model.RedFlagSet
	logger *zap.Logger
}

// NewInterceptor creates an interceptor over a loaded rule set
func NewInterceptor(rules model.RedFlagSet, logger *zap.Logger) *Interceptor {
	return &Interceptor{rules: rules, logger: logging.OrNop(logger)}
}

// Intercept checks one utterance and logs a match. The utterance itself is not logged.
func (i *Interceptor) Intercept(sessionID, utterance string) *model.EmergencyAlert {
	alert := Check(utterance, i.rules)
	if alert != nil {
		i.logger.Info("red flag intercepted",
			zap.String("session", sessionID),
			zap.String("keyword", alert.Keyword),
			zap.String("rule", alert.Rule))
	}
	return alert
}
