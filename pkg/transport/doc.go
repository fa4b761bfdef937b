// Package transport defines the handler interfaces and middleware chain for
// the proxy's HTTP/SSE transport layer.
//
// The transport layer bridges OpenAI-compatible clients and the completion
// engine. It deserializes incoming requests into the wire types defined in
// pkg/api, dispatches them for processing, and serializes results back to
// the client either as a single JSON completion or as a stream of
// chat.completion.chunk frames terminated by "data: [DONE]".
//
// # Handler Interfaces
//
//   - CompletionCreator handles POST /v1/chat/completions.
//   - ModelLister handles GET /v1/models.
//
// The ResponseWriter interface abstracts streaming and non-streaming output,
// allowing the handler to emit chunks or a complete completion without
// knowing the underlying transport protocol.
//
// # Middleware
//
// The middleware chain wraps CompletionCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
