package model

import "time"

// Config is the complete runtime configuration for the triage service
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base" yaml:"knowledge_base"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Dialogue      DialogueConfig      `mapstructure:"dialogue" yaml:"dialogue"`
	Session       SessionConfig       `mapstructure:"session" yaml:"session"`
	RateLimiting  RateLimitConfig     `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	Links         LinkCheckConfig     `mapstructure:"links" yaml:"links"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP entry point
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	TurnTimeout  time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"` // 0 = no per-turn deadline
	AllowOrigins []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// KnowledgeBaseConfig locates the three knowledge resources.
// Each path may be a local file/directory or an http(s) URL (files only).
type KnowledgeBaseConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	RedFlags     string `mapstructure:"red_flags" yaml:"red_flags"`
	Protocol     string `mapstructure:"protocol" yaml:"protocol"`
	ClinicalDir  string `mapstructure:"clinical_dir" yaml:"clinical_dir"`
	Facilities   string `mapstructure:"facilities" yaml:"facilities"`
	ContextLimit int    `mapstructure:"context_limit" yaml:"context_limit"` // characters of clinical reference text
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBytes     int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// LLMConfig selects and configures the generation provider
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"` // openai, anthropic, ollama, gemini
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout     int     `mapstructure:"timeout" yaml:"timeout"` // seconds
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	HTTPProxy   string  `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy  string  `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy     string  `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// DialogueConfig tunes reply classification
type DialogueConfig struct {
	Classifier      string `mapstructure:"classifier" yaml:"classifier"` // keyword, tagged
	AddressRequests bool   `mapstructure:"address_requests" yaml:"address_requests"`
}

// SessionConfig controls the conversation store
type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// RateLimitConfig limits incoming messages per session
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size"`
}

// LinkCheckConfig controls monitoring link validation
type LinkCheckConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	StaleAfter    time.Duration `mapstructure:"stale_after" yaml:"stale_after"` // Last-Modified age that marks a page stale
	HTTPProxy     string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy    string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy       string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`

	OfficialDomains      []string          `mapstructure:"official_domains" yaml:"official_domains"`
	InstitutionalDomains []string          `mapstructure:"institutional_domains" yaml:"institutional_domains"`
	DomainMap            map[string]string `mapstructure:"domain_map" yaml:"domain_map,omitempty"`
	PathPatterns         []PathTier        `mapstructure:"path_patterns" yaml:"path_patterns,omitempty"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, console
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8000",
			TurnTimeout:  90 * time.Second,
			AllowOrigins: []string{"*"},
		},
		KnowledgeBase: KnowledgeBaseConfig{
			Dir:          "knowledge_base",
			RedFlags:     "phase_1_safety/red_flags.json",
			Protocol:     "phase_2_clinical/protocollo_domande.json",
			ClinicalDir:  "phase_2_clinical",
			Facilities:   "phase_3_logistics/sedi_emilia_romagna.json",
			ContextLimit: 30000,
			UserAgent:    "Triage/0.1 (+https://github.com/ppiankov/triage)",
			MaxBytes:     5_000_000,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Timeout:     60,
			MaxTokens:   1024,
			Temperature: 0.3,
		},
		Dialogue: DialogueConfig{
			Classifier:      "keyword",
			AddressRequests: true,
		},
		Session: SessionConfig{
			IdleTTL:         2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		RateLimiting: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 0.5,
			BurstSize:         3,
		},
		Links: LinkCheckConfig{
			Timeout:       10 * time.Second,
			Workers:       8,
			RespectRobots: true,
			UserAgent:     "Triage/0.1 (+https://github.com/ppiankov/triage)",
			StaleAfter:    365 * 24 * time.Hour,
			OfficialDomains: []string{
				"salute.gov.it",
				"regione.emilia-romagna.it",
				"salute.regione.emilia-romagna.it",
			},
			InstitutionalDomains: []string{
				"ausl.bologna.it",
				"aosp.bo.it",
				"auslromagna.it",
				"ausl.mo.it",
				"ausl.re.it",
				"ausl.pr.it",
				"ausl.pc.it",
				"ausl.fe.it",
				"ospfe.it",
				"ao.pr.it",
			},
			PathPatterns: []PathTier{
				{Pattern: `(?i)/(pronto-?soccorso|tempi-?(di-)?attesa)`, Tier: "institutional"},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
