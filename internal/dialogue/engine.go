// Package dialogue drives the clinical questionnaire: it composes the
// generation request from the conversation and the knowledge base, makes a
// single generation attempt, and classifies the reply.
package dialogue

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/triage/internal/llm"
	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
)

// errGenerationDisabled is logged when no provider is configured
var errGenerationDisabled = errors.New("no generation provider configured")

// Engine advances a conversation by one assistant reply
type Engine struct {
	provider   llm.Provider
	kb         *model.KnowledgeBase
	classifier Classifier
	logger     *zap.Logger
}

// NewEngine creates a dialogue engine. A nil provider makes every reply the fallback;
// a nil classifier means keyword classification.
func NewEngine(provider llm.Provider, kb *model.KnowledgeBase, classifier Classifier, logger *zap.Logger) *Engine {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if kb == nil {
		kb = &model.KnowledgeBase{}
	}
	return &Engine{
		provider:   provider,
		kb:         kb,
		classifier: classifier,
		logger:     logging.OrNop(logger),
	}
}

// Classifier returns the reply classifier in use
func (e *Engine) Classifier() Classifier {
	return e.classifier
}

// Prompt returns the generation request for conv
func (e *Engine) Prompt(conv model.Conversation) string {
	prompt := BuildPrompt(conv, e.kb.Protocol, e.kb.ClinicalContext, e.kb.Facilities)
	if s, ok := e.classifier.(Structured); ok {
		prompt += "\n\n" + s.Instruction()
	}
	return prompt
}

// Advance generates the next assistant reply for conv, whose last turn is the
// user's message. Generation is attempted once; an error or an empty result
// yields FallbackReply with Failed set. The caller's context bounds the call.
func (e *Engine) Advance(ctx context.Context, conv model.Conversation) model.GeneratedReply {
	if e.provider == nil {
		return e.fallback(conv.ID, "", errGenerationDisabled)
	}

	resp, err := e.provider.Generate(ctx, llm.GenerateRequest{Prompt: e.Prompt(conv)})
	if err != nil {
		return e.fallback(conv.ID, e.provider.Name(), err)
	}

	text := strings.TrimSpace(resp.Text)
	classification := e.classifier.Classify(text)
	if s, ok := e.classifier.(Structured); ok {
		text = s.Clean(text)
	}
	if text == "" {
		return e.fallback(conv.ID, e.provider.Name(), llm.ErrNoResponse)
	}

	e.logger.Debug("reply generated",
		zap.String("session", conv.ID),
		zap.String("provider", e.provider.Name()),
		zap.Int("tokens", resp.TokensUsed),
		zap.Bool("concluded", classification.Concluded))

	return model.GeneratedReply{
		Text:           text,
		Provider:       e.provider.Name(),
		Classification: classification,
	}
}

func (e *Engine) fallback(sessionID, provider string, cause error) model.GeneratedReply {
	e.logger.Warn("generation failed, using fallback reply",
		zap.String("session", sessionID),
		zap.String("provider", provider),
		zap.Error(cause))

	return model.GeneratedReply{
		Text:           FallbackReply,
		Failed:         true,
		Provider:       provider,
		Classification: KeywordClassifier{}.Classify(FallbackReply),
	}
}
