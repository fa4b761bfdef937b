// Package engine turns OpenAI chat completion requests into fal any-llm
// calls and maps the results back.
//
// Compose flattens the message list into a bounded system prompt and
// prompt, keeping the most recent turns. DeltaReconstructor turns the
// backend's cumulative output snapshots into incremental deltas. Engine
// ties both to a provider.Provider and implements
// transport.CompletionCreator and transport.ModelLister.
package engine
