package transport

import (
	"context"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
)

// CompletionCreator handles the create-chat-completion operation. The
// implementation receives a request and writes the result (streaming
// chunks or a complete completion) to the ResponseWriter.
type CompletionCreator interface {
	CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// CompletionCreatorFunc is an adapter that allows using an ordinary function
// as a CompletionCreator.
type CompletionCreatorFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// CreateCompletion calls f(ctx, req, w).
func (f CompletionCreatorFunc) CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ModelLister lists the models the proxy can serve.
type ModelLister interface {
	ListModels(ctx context.Context) (*api.ModelList, error)
}

// ResponseWriter abstracts streaming and non-streaming output for the handler.
// The transport layer creates a ResponseWriter for each request and provides
// it to the handler. The handler uses WriteChunk for streaming responses or
// WriteCompletion for non-streaming responses.
//
// WriteChunk and WriteCompletion are mutually exclusive on a single writer
// instance. Calling one after the other returns an error, as does any write
// after Close.
type ResponseWriter interface {
	// WriteChunk sends a single streaming chunk and flushes it.
	WriteChunk(ctx context.Context, chunk *api.ChatCompletionChunk) error

	// WriteCompletion sends a complete non-streaming response.
	WriteCompletion(ctx context.Context, resp *api.ChatCompletion) error

	// WriteError reports a failure in whatever form is still possible: a
	// JSON error response when nothing was written yet, a terminal error
	// chunk when a stream is in progress.
	WriteError(ctx context.Context, apiErr *api.APIError) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error

	// Close ends the response. For streams it writes the [DONE] terminator
	// exactly once; further calls are no-ops.
	Close() error
}
