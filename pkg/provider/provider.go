package provider

import "context"

// Provider abstracts a completion backend that takes a flattened
// system prompt + prompt pair rather than a message list. Each adapter
// handles its own wire protocol internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "fal").
	Name() string

	// Complete performs a single non-streaming call and returns the final
	// result. A result that carries a backend error payload is returned with
	// Failed set and a nil error; transport failures are returned as errors.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Stream performs a streaming call. The returned channel receives events
	// in delivery order and is closed by the provider when the stream ends,
	// fails, or the context is cancelled.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// ListModels returns the models this provider can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}
