package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
)

func TestWriteCompletionJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	resp := &api.ChatCompletion{
		ID:      "chatcmpl-abc123",
		Object:  api.ObjectChatCompletion,
		Created: 1700000000,
		Model:   "test-model",
		Choices: []api.Choice{{
			Message:      api.AssistantMessage{Role: api.RoleAssistant, Content: "Hello"},
			FinishReason: api.FinishReasonStop,
		}},
	}

	if err := rw.WriteCompletion(context.Background(), resp); err != nil {
		t.Fatalf("WriteCompletion error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var got api.ChatCompletion
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "chatcmpl-abc123" {
		t.Errorf("ID = %q, want %q", got.ID, "chatcmpl-abc123")
	}
	if got.Choices[0].Message.Content != "Hello" {
		t.Errorf("content = %q, want %q", got.Choices[0].Message.Content, "Hello")
	}

	// A JSON response is never followed by a terminator.
	if err := rw.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Errorf("non-streaming body should not contain [DONE]: %s", rec.Body.String())
	}
}

func TestWriteChunkSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	chunk := api.NewChunk("chatcmpl-1", "m", 1, "Hel", "")
	if err := rw.WriteChunk(context.Background(), chunk); err != nil {
		t.Fatalf("WriteChunk error: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") {
		t.Errorf("frame should start with data line: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("frame should end with blank line: %q", body)
	}
	if strings.Contains(body, "event:") {
		t.Errorf("chat chunks carry no event line: %q", body)
	}

	var got api.ChatCompletionChunk
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.Choices[0].Delta.Content != "Hel" {
		t.Errorf("delta = %q, want %q", got.Choices[0].Delta.Content, "Hel")
	}
	if !rec.Flushed {
		t.Error("chunk was not flushed")
	}
}

func TestWriteChunkSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-1", "m", 1, "x", ""))

	headers := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestCloseWritesDoneOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-1", "m", 1, "x", api.FinishReasonStop))
	if err := rw.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	body := rec.Body.String()
	if n := strings.Count(body, "[DONE]"); n != 1 {
		t.Errorf("[DONE] count = %d, want 1", n)
	}
	if !strings.HasSuffix(body, doneFrame) {
		t.Errorf("body should end with [DONE]: %q", body)
	}
}

func TestCloseWithoutChunksStillTerminates(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if rec.Body.String() != doneFrame {
		t.Errorf("body = %q, want only [DONE]", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestWriteChunkAfterCloseReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.Close()
	err := rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-1", "m", 1, "late", ""))
	if !errors.Is(err, errWriterClosed) {
		t.Errorf("err = %v, want errWriterClosed", err)
	}
}

func TestWriteCompletionAfterChunkReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-1", "m", 1, "x", ""))
	if err := rw.WriteCompletion(context.Background(), &api.ChatCompletion{}); err == nil {
		t.Error("expected error writing a completion after streaming started")
	}
}

func TestWriteChunkAfterCompletionReturnsError(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteCompletion(context.Background(), &api.ChatCompletion{ID: "chatcmpl-1"})
	if err := rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-1", "m", 1, "x", "")); !errors.Is(err, errWriterClosed) {
		t.Errorf("err = %v, want errWriterClosed", err)
	}
}

func TestWriteErrorBeforeOutputIsJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	if err := rw.WriteError(context.Background(), api.NewInvalidRequestError("model", "model is required")); err != nil {
		t.Fatalf("WriteError error: %v", err)
	}

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var got api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Error.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("type = %q, want %q", got.Error.Type, api.ErrorTypeInvalidRequest)
	}

	// The response is complete; closing must not append a stream terminator.
	rw.Close()
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Errorf("JSON error should not be followed by [DONE]")
	}
}

func TestWriteErrorDuringStream(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEResponseWriter(rec)

	rw.WriteChunk(context.Background(), api.NewChunk("chatcmpl-stream", "fal-model", 42, "Hi", ""))
	if err := rw.WriteError(context.Background(), api.NewBackendError("quota exceeded")); err != nil {
		t.Fatalf("WriteError error: %v", err)
	}

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3: %q", len(frames), rec.Body.String())
	}
	if frames[2] != "data: [DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[2])
	}

	var errChunk api.ChatCompletionChunk
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &errChunk); err != nil {
		t.Fatalf("unmarshal error chunk: %v", err)
	}
	if errChunk.ID != "chatcmpl-stream" || errChunk.Model != "fal-model" || errChunk.Created != 42 {
		t.Errorf("error chunk not addressed to the stream: %+v", errChunk)
	}
	if errChunk.Error == nil || errChunk.Error.Type != api.ErrorTypeBackend {
		t.Errorf("embedded error = %+v, want backend_error", errChunk.Error)
	}
	if got := *errChunk.Choices[0].FinishReason; got != api.FinishReasonError {
		t.Errorf("finish_reason = %q, want error", got)
	}

	if err := rw.WriteError(context.Background(), api.NewServerError("again")); !errors.Is(err, errWriterClosed) {
		t.Errorf("second WriteError = %v, want errWriterClosed", err)
	}
}
