// Package api defines the OpenAI-compatible wire types served by the
// fal-to-openai proxy.
//
// The package covers the inbound chat completion request, the
// non-streaming chat.completion object, streaming chat.completion.chunk
// frames, the model list, structured errors and completion ID generation.
// It performs no I/O.
//
// Core types:
//   - [ChatCompletionRequest]: Client request (model, messages, stream, reasoning)
//   - [ChatMessage]: One role-tagged conversation message
//   - [ChatCompletion]: Complete non-streaming response
//   - [ChatCompletionChunk]: One SSE frame of a streaming response
//   - [APIError]: Structured error with type, code, param, and message
package api
