package provider

// Request is the backend-facing request produced by the prompt composer.
type Request struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
	Reasoning    bool   `json:"reasoning,omitempty"`

	// Extra holds provider-specific parameters merged into the request body.
	Extra map[string]any `json:"-"`
}

// Result is the final outcome of a non-streaming call.
type Result struct {
	// Output is the generated text.
	Output string

	// Reasoning is the optional reasoning text returned by the backend.
	Reasoning string

	// RequestID is the backend's identifier for the call, if any.
	RequestID string

	// Failed is set when the backend reported an error payload.
	Failed bool

	// Error is the backend error payload as text (verbatim when it was a
	// JSON string, otherwise its raw JSON).
	Error string
}

// Event is a single streaming event. Data holds the raw JSON object the
// backend sent; its fields are interpreted by the engine. Err is set
// instead of Data when the stream failed at the transport level, and is
// always the last event on the channel.
type Event struct {
	Data []byte
	Err  error
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}
