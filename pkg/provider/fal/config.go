package fal

import "time"

// Default endpoint settings.
const (
	DefaultBaseURL = "https://fal.run"
	DefaultApp     = "fal-ai/any-llm"
)

// Config holds configuration for the fal provider adapter.
type Config struct {
	// BaseURL is the fal run host (e.g., "https://fal.run").
	BaseURL string

	// App is the fal application path (e.g., "fal-ai/any-llm").
	App string

	// APIKey is sent as "Authorization: Key <APIKey>".
	APIKey string

	// Timeout for non-streaming requests. Defaults to 120s. Streams are
	// bounded by the request context only.
	Timeout time.Duration

	// Models is the static list returned by ListModels.
	Models []string

	// ExtraParams are merged into every request body.
	ExtraParams map[string]any
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		App:     DefaultApp,
		APIKey:  apiKey,
		Timeout: 120 * time.Second,
	}
}
