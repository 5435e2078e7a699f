// Package config holds the immutable, copy-on-write view of routers,
// channels, teams, and global policy that the rest of the gateway reads.
package config

// ProviderType enumerates the upstream protocol families a Channel can
// speak. It is a string so config files stay human readable.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
	ProviderDeepseek   ProviderType = "deepseek"
	ProviderMoonshot   ProviderType = "moonshot"
	ProviderMinimax    ProviderType = "minimax"
	ProviderOllama     ProviderType = "ollama"
	ProviderJina       ProviderType = "jina"
	ProviderOpenRouter ProviderType = "openrouter"
)

// Timeouts bounds the lifecycle of one upstream attempt. Zero fields
// inherit from Global.Timeouts.
type Timeouts struct {
	ConnectMS  int `json:"connect_ms,omitempty"`
	RequestMS  int `json:"request_ms,omitempty"`
	ResponseMS int `json:"response_ms,omitempty"`
}

// Channel is a named upstream LLM endpoint with credentials.
type Channel struct {
	Name             string            `json:"name"`
	ProviderType     ProviderType      `json:"provider_type"`
	BaseURL          string            `json:"base_url"`
	APIKey           string            `json:"api_key"`
	AnthropicBaseURL string            `json:"anthropic_base_url,omitempty"`
	ExtraHeaders     map[string]string `json:"extra_headers,omitempty"`
	ModelMap         map[string]string `json:"model_map,omitempty"`
	Timeouts         *Timeouts         `json:"timeouts,omitempty"`
}

// WeightedChannel names one channel and its draw weight within a rule.
type WeightedChannel struct {
	Name   string `json:"name"`
	Weight uint32 `json:"weight"`
}

// Strategy selects a single channel out of a rule's weighted channel list.
type Strategy string

const (
	StrategyPriority    Strategy = "priority"
	StrategyRandom      Strategy = "random"
	StrategyRoundRobin  Strategy = "round_robin"
)

// MatchSpec lists the model-name patterns a RouterRule matches against.
// Models accepts either a JSON string or an array (and the alias "model"),
// normalized into a slice during load.
type MatchSpec struct {
	Models []string `json:"models"`
}

// RouterRule is one (patterns, channels, strategy) tuple. Rule order
// within a Router is significant: first match wins.
type RouterRule struct {
	MatchSpec MatchSpec         `json:"match_spec"`
	Channels  []WeightedChannel `json:"channels"`
	Strategy  Strategy          `json:"strategy"`
}

// Router is a named routing policy mapping model names to ordered
// candidate channels.
type Router struct {
	Name             string       `json:"name"`
	Vkey             string       `json:"vkey,omitempty"`
	Rules            []RouterRule `json:"rules"`
	FallbackChannels []string     `json:"fallback_channels,omitempty"`
}

// RateLimit caps a team's admission at requests-per-minute and
// tokens-per-minute.
type RateLimit struct {
	RPM int `json:"rpm,omitempty"`
	TPM int `json:"tpm,omitempty"`
}

// TeamPolicy governs what a team may do once authenticated.
type TeamPolicy struct {
	AllowedRouters []string   `json:"allowed_routers"`
	AllowedModels  []string   `json:"allowed_models,omitempty"`
	RateLimit      *RateLimit `json:"rate_limit,omitempty"`
}

// Team is an authenticated caller identity.
type Team struct {
	ID     string     `json:"id"`
	APIKey string     `json:"api_key"`
	Policy TeamPolicy `json:"policy"`
}

// AuthMode selects how the gateway authenticates callers that present no
// team API key.
type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
)

// AuthConfig is the global auth fallback, used for callers without a team.
type AuthConfig struct {
	Mode AuthMode `json:"mode"`
	Keys []string `json:"keys,omitempty"`
}

// GlobalTimeouts are the process-wide defaults; Channel.Timeouts override
// per field.
type GlobalTimeouts struct {
	ConnectMS  int `json:"connect_ms"`
	RequestMS  int `json:"request_ms"`
	ResponseMS int `json:"response_ms"`
}

// RetryConfig governs the per-channel retry loop.
type RetryConfig struct {
	MaxAttempts  int   `json:"max_attempts"`
	BackoffMS    int   `json:"backoff_ms"`
	RetryOnStatus []int `json:"retry_on_status"`
}

// Global holds process-wide policy that is not specific to any one
// router, channel, or team.
type Global struct {
	Listen   string         `json:"listen"`
	Auth     AuthConfig     `json:"auth"`
	Timeouts GlobalTimeouts `json:"timeouts"`
	Retries  RetryConfig    `json:"retries"`
}

// LoggingConfig describes the ambient logging stack. It is not part of
// the routing core. It is parsed with the document, but `apex serve`
// does not read it: the logger's level and encoding come from the
// --log-level and --log-json flags.
type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	JSON  bool   `json:"json,omitempty"`
}

// MetricsConfig holds an optional listen address for Prometheus
// exposition. It is parsed with the document, but `apex serve` does not
// read it: /metrics is served only on the main gin engine, and no
// separate metrics listener is started.
type MetricsConfig struct {
	Listen string `json:"listen,omitempty"`
}

// HotReloadConfig governs the config-file watcher.
type HotReloadConfig struct {
	Enabled             bool `json:"enabled"`
	Watch               bool `json:"watch"`
	PollIntervalSeconds int  `json:"poll_interval_seconds,omitempty"`
}

// AuditConfig points at the append-only CSV usage sink.
type AuditConfig struct {
	Path string `json:"path,omitempty"`
}

// Document is the on-disk JSON shape of the config file (spec.md §6).
type Document struct {
	Version   int             `json:"version"`
	Global    Global          `json:"global"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Channels  []Channel       `json:"channels"`
	Routers   []Router        `json:"routers"`
	Teams     []Team          `json:"teams"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	HotReload HotReloadConfig `json:"hot_reload,omitempty"`
	Audit     AuditConfig     `json:"audit,omitempty"`
}

// Snapshot is the fully validated, read-only view of a Document indexed
// for fast lookup. It is never mutated after construction; reload builds
// a new Snapshot and swaps the pointer atomically.
type Snapshot struct {
	Doc      Document
	Channels map[string]Channel
	Routers  map[string]Router
	Teams    map[string]Team
	TeamsByKey map[string]Team
}
