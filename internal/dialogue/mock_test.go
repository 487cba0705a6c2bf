package dialogue

import (
	"context"
	"sync/atomic"

	"github.com/ppiankov/triage/internal/llm"
)

// mockProvider is a test double that counts Generate calls
type mockProvider struct {
	text       string
	err        error
	lastPrompt string
	calls      atomic.Int32
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return m.err == nil }

func (m *mockProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"mock-1"}, nil
}

func (m *mockProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	m.calls.Add(1)
	m.lastPrompt = req.Prompt
	if m.err != nil {
		return nil, m.err
	}
	return &llm.GenerateResponse{Text: m.text, Model: "mock-1", TokensUsed: 42}, nil
}
