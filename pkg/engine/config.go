package engine

import (
	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// Config holds configuration for the completion engine. It is built once
// at startup and never changes per request.
type Config struct {
	// Budgets bounds the composed system prompt and prompt.
	Budgets Budgets

	// Validation holds request validation limits.
	Validation api.ValidationConfig

	// Streams, when set, tracks in-flight streams so they can be cancelled
	// on shutdown.
	Streams *transport.StreamRegistry
}

// DefaultConfig returns a Config with default budgets and validation limits.
func DefaultConfig() Config {
	return Config{
		Budgets:    DefaultBudgets(),
		Validation: api.DefaultValidationConfig(),
	}
}
