package llm

import (
	"context"
	"errors"
)

// ErrNoResponse is returned when a provider answers without any text
var ErrNoResponse = errors.New("no response from provider")

// Provider defines the interface for text-generation providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate sends one composed prompt and returns the generated text.
	// It makes a single attempt; callers decide what to do on failure.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool

	// ListModels returns the model identifiers the provider can generate with
	ListModels(ctx context.Context) ([]string, error)
}

// GenerateRequest contains the input for one generation call
type GenerateRequest struct {
	// Prompt is the complete instruction-plus-context block
	Prompt string

	// System is an optional system instruction
	System string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the provider output
type GenerateResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic/Gemini
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Temperature for sampling
	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Disabled by default
		Timeout:     60,
		MaxTokens:   1024,
		Temperature: 0.3,
	}
}

// SystemInstruction is sent as the system role where the provider supports one
const SystemInstruction = "You are an experienced triage nurse assistant. Follow the instructions in the user message exactly."

func (c Config) maxTokens(req GenerateRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1024
}

func (c Config) model(req GenerateRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func systemOrDefault(req GenerateRequest) string {
	if req.System != "" {
		return req.System
	}
	return SystemInstruction
}
