package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteChunk has been called at least once
	writerCompleted                    // WriteCompletion or a JSON error was written
	writerClosed                       // [DONE] was written
)

// errWriterClosed is returned for writes after the response has ended.
var errWriterClosed = errors.New("response writer is closed")

// doneFrame terminates every stream.
const doneFrame = "data: [DONE]\n\n"

// sseResponseWriter implements transport.ResponseWriter for HTTP/SSE responses.
// It handles both streaming (SSE) and non-streaming (JSON) output.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// last is the most recent chunk, used to address a late error chunk
	// to the same completion.
	last *api.ChatCompletionChunk
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

// newSSEResponseWriter creates a new ResponseWriter wrapping an http.ResponseWriter.
func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteChunk sends a single SSE frame formatted as:
//
//	data: {json}\n
//	\n
func (s *sseResponseWriter) WriteChunk(ctx context.Context, chunk *api.ChatCompletionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeChunkLocked(chunk)
}

func (s *sseResponseWriter) writeChunkLocked(chunk *api.ChatCompletionChunk) error {
	if s.state == writerCompleted || s.state == writerClosed {
		return errWriterClosed
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	s.startStreamLocked()
	s.last = chunk

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// startStreamLocked sets the SSE headers on the first frame.
func (s *sseResponseWriter) startStreamLocked() {
	if s.state != writerIdle {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.state = writerStreaming
}

// WriteCompletion sends a complete non-streaming JSON response.
// This is mutually exclusive with WriteChunk.
func (s *sseResponseWriter) WriteCompletion(ctx context.Context, resp *api.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write completion: streaming has already started")
	case writerCompleted, writerClosed:
		return errWriterClosed
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode completion: %w", err)
	}
	return nil
}

// WriteError reports apiErr. Before any output it writes a JSON error with
// the status derived from the error type. During a stream it writes a
// terminal error chunk and closes the stream; the close is attempted even
// if the error chunk cannot be written.
func (s *sseResponseWriter) WriteError(ctx context.Context, apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerIdle:
		s.state = writerCompleted
		transport.WriteAPIError(s.w, apiErr)
		return nil

	case writerStreaming:
		id, model, created := api.NewCompletionID(), "", int64(0)
		if s.last != nil {
			id, model, created = s.last.ID, s.last.Model, s.last.Created
		}
		writeErr := s.writeChunkLocked(api.NewErrorChunk(id, model, created, apiErr))
		closeErr := s.closeLocked()
		return errors.Join(writeErr, closeErr)

	default:
		return errWriterClosed
	}
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// Close writes the [DONE] terminator once. A stream that never produced a
// chunk still gets SSE headers and the terminator. Close after a JSON
// response, or a second Close, does nothing.
func (s *sseResponseWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *sseResponseWriter) closeLocked() error {
	switch s.state {
	case writerCompleted, writerClosed:
		return nil
	}

	s.startStreamLocked()
	s.state = writerClosed

	if _, err := fmt.Fprint(s.w, doneFrame); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush [DONE]: %w", err)
	}
	return nil
}
