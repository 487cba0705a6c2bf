// Package pipeline runs one triage turn: safety interception, then the clinical
// dialogue, then facility resolution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/triage/internal/cache"
	"github.com/ppiankov/triage/internal/dialogue"
	"github.com/ppiankov/triage/internal/facility"
	"github.com/ppiankov/triage/internal/llm"
	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/safety"
)

// ErrEmptyMessage is returned for a turn with no text and no reset
var ErrEmptyMessage = errors.New("message is empty")

// ResetAcknowledgement is the reply to a reset request
const ResetAcknowledgement = "🔄 Conversazione azzerata. Descrivi i tuoi sintomi e dimmi in quale città ti trovi.\n\n" +
	"Conversation cleared. Describe your symptoms and tell me which city you are in."

// Pipeline orchestrates the triage turn
type Pipeline struct {
	interceptor *safety.Interceptor
	engine      *dialogue.Engine
	resolver    *facility.Resolver
	store       *cache.SessionStore
	logger      *zap.Logger
}

// New assembles a pipeline from its parts
func New(kb *model.KnowledgeBase, engine *dialogue.Engine, resolver *facility.Resolver, store *cache.SessionStore, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		interceptor: safety.NewInterceptor(kb.RedFlags, logger),
		engine:      engine,
		resolver:    resolver,
		store:       store,
		logger:      logger,
	}
}

// NewPipeline builds a pipeline from configuration over a loaded knowledge base.
// A provider that cannot be created is logged and generation falls back to the safe reply.
func NewPipeline(cfg *model.Config, kb *model.KnowledgeBase, logger *zap.Logger) (*Pipeline, error) {
	logger = logging.OrNop(logger)

	classifier, err := dialogue.NewClassifier(cfg.Dialogue.Classifier)
	if err != nil {
		return nil, err
	}

	var provider llm.Provider
	if cfg.LLM.Provider != "" {
		p, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			logger.Warn("failed to initialize LLM provider", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		} else {
			provider = p
		}
	}

	store := cache.NewSessionStore(
		cache.NewMemoryCache(cfg.Session.IdleTTL, cfg.Session.CleanupInterval),
		cfg.Session.IdleTTL,
	)

	return New(kb,
		dialogue.NewEngine(provider, kb, classifier, logger),
		facility.NewResolver(kb, cfg.Dialogue.AddressRequests),
		store,
		logger,
	), nil
}

// Turn processes one user message against conv and returns the extended
// conversation. conv itself is not modified. A red-flag match answers with the
// emergency alert and skips generation for this turn only.
func (p *Pipeline) Turn(ctx context.Context, conv model.Conversation, message string) (model.Conversation, model.TurnResult) {
	conv = conv.Append(model.RoleUser, message)
	if city := p.resolver.City(conv); city != "" {
		conv.LastKnownCity = city
	}

	if alert := p.interceptor.Intercept(conv.ID, message); alert != nil {
		response := safety.FormatAlert(alert)
		return conv.Append(model.RoleAssistant, response), model.TurnResult{
			Response: response,
			Alert:    alert,
			City:     conv.LastKnownCity,
			Stage:    model.StageEmergency,
		}
	}

	reply := p.engine.Advance(ctx, conv)
	addendum := p.resolver.Resolve(conv, reply)

	response := reply.Text
	if addendum.Text != "" {
		response += "\n\n" + addendum.Text
	}
	conv = conv.Append(model.RoleAssistant, response)

	stage := dialogue.InferStage(conv, p.resolver.Cities(), p.engine.Classifier())
	if reply.Classification.Concluded {
		stage = model.StageConcluded
	}

	return conv, model.TurnResult{
		Response:  response,
		Generated: &reply,
		City:      conv.LastKnownCity,
		Addendum:  addendum.Text,
		Stage:     stage,
	}
}

// Request is one call to the turn entry point
type Request struct {
	Message string
	Reset   bool
}

// Response is the outcome of Handle
type Response struct {
	Response  string      `json:"response"`
	SessionID string      `json:"session_id"`
	Emergency bool        `json:"emergency"`
	Concluded bool        `json:"concluded"`
	Failed    bool        `json:"fallback,omitempty"`
	City      string      `json:"city,omitempty"`
	Stage     model.Stage `json:"stage"`
}

// Handle runs a request against the stored conversation of sessionID. Turns of
// the same session never overlap. Reset clears the conversation and returns an
// acknowledgement without generation.
func (p *Pipeline) Handle(ctx context.Context, sessionID string, req Request) (Response, error) {
	if req.Reset {
		if _, err := p.store.Reset(sessionID); err != nil {
			return Response{}, fmt.Errorf("reset session: %w", err)
		}
		p.logger.Info("session reset", zap.String("session", sessionID))
		return Response{
			Response:  ResetAcknowledgement,
			SessionID: sessionID,
			Stage:     model.StageIdle,
		}, nil
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}

	start := time.Now()
	var result model.TurnResult
	_, err := p.store.Update(sessionID, func(conv model.Conversation) (model.Conversation, error) {
		next, r := p.Turn(ctx, conv, message)
		result = r
		return next, nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("store turn: %w", err)
	}

	resp := Response{
		Response:  result.Response,
		SessionID: sessionID,
		Emergency: result.Alert != nil,
		City:      result.City,
		Stage:     result.Stage,
	}
	if result.Generated != nil {
		resp.Concluded = result.Generated.Classification.Concluded
		resp.Failed = result.Generated.Failed
	}

	p.logger.Info("turn completed",
		zap.String("session", sessionID),
		zap.String("stage", string(resp.Stage)),
		zap.Bool("emergency", resp.Emergency),
		zap.Bool("concluded", resp.Concluded),
		zap.Bool("fallback", resp.Failed),
		zap.Bool("addendum", result.Addendum != ""),
		zap.Duration("duration", time.Since(start)))

	return resp, nil
}

// Conversation returns the stored conversation of sessionID
func (p *Pipeline) Conversation(sessionID string) (model.Conversation, bool) {
	return p.store.Get(sessionID)
}

// Forget deletes the stored conversation of sessionID
func (p *Pipeline) Forget(sessionID string) error {
	return p.store.Delete(sessionID)
}
