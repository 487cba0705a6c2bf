package dialogue

import (
	"github.com/ppiankov/triage/internal/facility"
	"github.com/ppiankov/triage/internal/model"
)

// InferStage derives the advisory conversation state from the log. It never
// gates behaviour; emergencies are reported by the pipeline for their own turn.
func InferStage(conv model.Conversation, cities []string, classifier Classifier) model.Stage {
	if conv.Len() == 0 {
		return model.StageIdle
	}
	if classifier == nil {
		classifier = KeywordClassifier{}
	}

	last := conv.Turns[len(conv.Turns)-1]
	if last.Role == model.RoleAssistant && classifier.Classify(last.Text).Concluded {
		return model.StageConcluded
	}

	if len(cities) > 0 && facility.ResolveCity(conv.UserTurns(), cities) == "" {
		return model.StageAwaitingCity
	}
	return model.StageCollectingSymptoms
}
