package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/pipeline"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, registerDefaults(v, model.DefaultConfig()))
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	def := model.DefaultConfig()
	assert.Equal(t, def.Server.Addr, cfg.Server.Addr)
	assert.Equal(t, def.Server.TurnTimeout, cfg.Server.TurnTimeout)
	assert.Equal(t, def.KnowledgeBase.ContextLimit, cfg.KnowledgeBase.ContextLimit)
	assert.Equal(t, def.Session.IdleTTL, cfg.Session.IdleTTL)
	assert.Equal(t, def.Links.InstitutionalDomains, cfg.Links.InstitutionalDomains)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TRIAGE_LLM_PROVIDER", "openai")
	t.Setenv("TRIAGE_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("TRIAGE_SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("TRIAGE_SESSION_IDLE_TTL", "30m")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "30m0s", cfg.Session.IdleTTL.String())
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadConfig_ExplicitKeyWins(t *testing.T) {
	t.Setenv("TRIAGE_LLM_PROVIDER", "anthropic")
	t.Setenv("TRIAGE_LLM_API_KEY", "from-config")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg, err := loadConfig(newTestViper(t))
	require.NoError(t, err)
	assert.Equal(t, "from-config", cfg.LLM.APIKey)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knowledge_base:\n  dir: /srv/kb\nrate_limiting:\n  enabled: false\n"), 0o600))

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/kb", cfg.KnowledgeBase.Dir)
	assert.False(t, cfg.RateLimiting.Enabled)
	assert.Equal(t, model.DefaultConfig().KnowledgeBase.Facilities, cfg.KnowledgeBase.Facilities)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".triage", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Triage Configuration File")
	assert.Contains(t, string(data), "knowledge_base:")

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Contains(t, string(data), "idle_ttl: 2h0m0s")
	assert.Equal(t, model.DefaultConfig().Session.IdleTTL, cfg.Session.IdleTTL)

	assert.Error(t, writeDefaultConfig(path), "existing file is not overwritten")
}

func TestLoadKnowledgeBase_LogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := model.DefaultConfig()
	cfg.KnowledgeBase.Dir = t.TempDir()

	knowledge, report := loadKnowledgeBase(context.Background(), cfg, zap.New(core))

	require.NotNil(t, knowledge)
	require.NotNil(t, report)
	assert.Equal(t, 1, logs.FilterMessage("knowledge base loaded").Len())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "********wxyz", maskSecret("sk-abcdefwxyz"))
}

type echoHandler struct {
	sessions map[string]bool
	resets   int
}

func (h *echoHandler) Handle(ctx context.Context, sessionID string, req pipeline.Request) (pipeline.Response, error) {
	h.sessions[sessionID] = true
	if req.Reset {
		h.resets++
		return pipeline.Response{Response: pipeline.ResetAcknowledgement}, nil
	}
	return pipeline.Response{Response: "eco: " + req.Message}, nil
}

func TestChatLoop(t *testing.T) {
	h := &echoHandler{sessions: make(map[string]bool)}
	in := strings.NewReader("ciao\n\n/reset\nsono a Bologna\n/quit\nnever read\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), h, in, &out))

	assert.Contains(t, out.String(), "eco: ciao")
	assert.Contains(t, out.String(), "eco: sono a Bologna")
	assert.NotContains(t, out.String(), "never read")
	assert.Equal(t, 1, h.resets)
	assert.Len(t, h.sessions, 1, "one session for the whole chat")
}

func TestChatLoop_EOF(t *testing.T) {
	h := &echoHandler{sessions: make(map[string]bool)}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), h, strings.NewReader("ciao"), &out))
	assert.Contains(t, out.String(), "eco: ciao")
}
