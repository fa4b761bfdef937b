// Package config provides unified configuration for the fal-to-openai proxy.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Legacy environment variables (FAL_KEY, API_KEY, PORT, ...)
//  4. Environment variable overrides (FALPROXY_ prefix)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Config holds all configuration for the proxy.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Prompt        PromptConfig        `yaml:"prompt"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds log output settings. FALPROXY_DEBUG,
// FALPROXY_LOG_LEVEL and FALPROXY_LOG_FORMAT take precedence.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxMessages     int           `yaml:"max_messages"`     // default: 10000
}

// BackendConfig holds the fal.ai connection settings.
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`     // default: https://fal.run
	App        string        `yaml:"app"`          // default: fal-ai/any-llm
	APIKey     string        `yaml:"api_key"`      // required
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // non-streaming calls, default: 120s
	Models     []string      `yaml:"models"`       // served by GET /v1/models

	// ExtraParams are merged into every backend request body.
	ExtraParams map[string]any `yaml:"extra_params"`
}

// PromptConfig holds the composer budgets, in characters.
type PromptConfig struct {
	SystemLimit int `yaml:"system_limit"` // default: 4800
	PromptLimit int `yaml:"prompt_limit"` // default: 4800
}

// AuthConfig holds inbound authentication settings.
type AuthConfig struct {
	Type       string          `yaml:"type"`         // "none", "apikey" or "jwt", default: "none"
	APIKey     string          `yaml:"api_key"`      // single shared key for type=apikey
	APIKeyFile string          `yaml:"api_key_file"` // _file variant for api_key
	APIKeys    []APIKeyConfig  `yaml:"api_keys"`     // keyed entries for type=apikey
	JWT        JWTConfig       `yaml:"jwt"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds settings for HMAC-signed bearer tokens.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	SecretFile  string        `yaml:"secret_file"` // _file variant for secret
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TierClaim   string        `yaml:"tier_claim"`   // default: "tier"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	Leeway      time.Duration `yaml:"leeway"`
}

// RateLimitConfig holds per-tier request limits. Zero disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // tier name -> requests per minute
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DefaultModels is the any-llm model list served when none is configured.
var DefaultModels = []string{
	"anthropic/claude-3.5-sonnet",
	"anthropic/claude-3-5-haiku",
	"anthropic/claude-3-haiku",
	"google/gemini-pro-1.5",
	"google/gemini-flash-1.5",
	"google/gemini-flash-1.5-8b",
	"meta-llama/llama-3.2-1b-instruct",
	"meta-llama/llama-3.2-3b-instruct",
	"meta-llama/llama-3.1-8b-instruct",
	"meta-llama/llama-3.1-70b-instruct",
	"openai/gpt-4o-mini",
	"openai/gpt-4o",
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
			MaxMessages:     10000,
		},
		Backend: BackendConfig{
			BaseURL: "https://fal.run",
			App:     "fal-ai/any-llm",
			Timeout: 120 * time.Second,
			Models:  append([]string(nil), DefaultModels...),
		},
		Prompt: PromptConfig{
			SystemLimit: 4800,
			PromptLimit: 4800,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
