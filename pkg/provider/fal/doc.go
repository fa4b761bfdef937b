// Package fal implements provider.Provider for the fal.ai any-llm
// application.
//
// fal.ai accepts a flat {model, system_prompt, prompt, reasoning} input.
// Non-streaming calls POST to the synchronous run endpoint and receive a
// single {output, reasoning, error} object. Streaming calls POST to the
// /stream endpoint and receive SSE events, each carrying the cumulative
// output so far together with a partial flag. Events are forwarded to the
// engine as raw JSON; turning snapshots into deltas is the engine's job.
package fal
