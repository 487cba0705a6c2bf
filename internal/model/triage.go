package model

// EmergencyAlert is produced when an utterance matches a red flag
type EmergencyAlert struct {
	Keyword string `json:"keyword"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// Classification is the machine-readable reading of a generated reply
type Classification struct {
	Concluded   bool         `json:"concluded"`
	Recommended FacilityType `json:"recommended"` // FacilityUrgentCare or FacilityEmergency
}

// GeneratedReply is the output of one dialogue step
type GeneratedReply struct {
	Text           string         `json:"text"`
	Failed         bool           `json:"failed"` // true when Text is the safe fallback
	Provider       string         `json:"provider,omitempty"`
	Classification Classification `json:"classification"`
}

// Stage is the advisory conversation state inferred from the transcript.
// Only StageEmergency is enforced, and only for the turn that raised it.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageAwaitingCity       Stage = "awaiting_city"
	StageCollectingSymptoms Stage = "collecting_symptoms"
	StageConcluded          Stage = "concluded"
	StageEmergency          Stage = "emergency"
)

// TurnResult is everything one pipeline turn produced
type TurnResult struct {
	Response  string          `json:"response"`
	Alert     *EmergencyAlert `json:"alert,omitempty"`
	Generated *GeneratedReply `json:"generated,omitempty"`
	City      string          `json:"city,omitempty"`
	Addendum  string          `json:"addendum,omitempty"`
	Stage     Stage           `json:"stage"`
}
