package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/provider"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	result   *provider.Result
	err      error
	models   []provider.ModelInfo
	lastReq  *provider.Request
	streamFn func(ctx context.Context, req *provider.Request) (<-chan provider.Event, error)
}

func (m *mockProvider) Name() string { return "mock" }
func (m *mockProvider) Complete(_ context.Context, req *provider.Request) (*provider.Result, error) {
	m.lastReq = req
	return m.result, m.err
}
func (m *mockProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	m.lastReq = req
	if m.streamFn != nil {
		return m.streamFn(ctx, req)
	}
	return nil, api.NewServerError("streaming not configured in mock")
}
func (m *mockProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return m.models, m.err
}
func (m *mockProvider) Close() error { return nil }

// mockResponseWriter captures writes for testing.
type mockResponseWriter struct {
	completion *api.ChatCompletion
	chunks     []*api.ChatCompletionChunk
	closeCalls int
	failWrites bool
}

func (w *mockResponseWriter) WriteChunk(_ context.Context, chunk *api.ChatCompletionChunk) error {
	if w.failWrites {
		return errors.New("client disconnected")
	}
	w.chunks = append(w.chunks, chunk)
	return nil
}

func (w *mockResponseWriter) WriteCompletion(_ context.Context, resp *api.ChatCompletion) error {
	w.completion = resp
	return nil
}

func (w *mockResponseWriter) WriteError(_ context.Context, _ *api.APIError) error { return nil }
func (w *mockResponseWriter) Flush() error                                         { return nil }
func (w *mockResponseWriter) Close() error {
	w.closeCalls++
	return nil
}

// Ensure mockResponseWriter implements transport.ResponseWriter.
var _ transport.ResponseWriter = (*mockResponseWriter)(nil)

// eventStream returns a stream function that emits the given JSON events
// followed by an optional transport error.
func eventStream(tail error, events ...string) func(context.Context, *provider.Request) (<-chan provider.Event, error) {
	return func(ctx context.Context, _ *provider.Request) (<-chan provider.Event, error) {
		ch := make(chan provider.Event, len(events)+1)
		for _, ev := range events {
			ch <- provider.Event{Data: []byte(ev)}
		}
		if tail != nil {
			ch <- provider.Event{Err: tail}
		}
		close(ch)
		return ch, nil
	}
}

func newTestEngine(t *testing.T, p provider.Provider) *Engine {
	t.Helper()
	e, err := New(p, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func chatRequest(stream bool) *api.ChatCompletionRequest {
	return &api.ChatCompletionRequest{
		Model:  "anthropic/claude-3.5-sonnet",
		Stream: stream,
		Messages: []api.ChatMessage{
			{Role: api.RoleSystem, Content: "be brief"},
			{Role: api.RoleUser, Content: "hello"},
		},
	}
}

func TestNew_NilProvider(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestCreateCompletion_Validation(t *testing.T) {
	tests := []struct {
		name      string
		req       *api.ChatCompletionRequest
		wantParam string
	}{
		{"missing model", &api.ChatCompletionRequest{Messages: []api.ChatMessage{{Role: api.RoleUser}}}, "model"},
		{"missing messages", &api.ChatCompletionRequest{Model: "m"}, "messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := &mockProvider{}
			e := newTestEngine(t, mp)
			w := &mockResponseWriter{}

			err := e.CreateCompletion(context.Background(), tt.req, w)

			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.APIError, got %T: %v", err, err)
			}
			if apiErr.Type != api.ErrorTypeInvalidRequest || apiErr.Param != tt.wantParam {
				t.Errorf("got %+v, want invalid_request_error on %q", apiErr, tt.wantParam)
			}
			if mp.lastReq != nil {
				t.Error("backend must not be called for an invalid request")
			}
		})
	}
}

func TestCreateCompletion_NonStreaming(t *testing.T) {
	mp := &mockProvider{result: &provider.Result{
		Output:    "Hi!",
		Reasoning: "greeting",
		RequestID: "fal-req-1",
	}}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	req := chatRequest(false)
	req.Reasoning = true
	if err := e.CreateCompletion(context.Background(), req, w); err != nil {
		t.Fatalf("CreateCompletion: %v", err)
	}

	if mp.lastReq.SystemPrompt != "System: be brief" || mp.lastReq.Prompt != "Human: hello" {
		t.Errorf("unexpected backend request: %+v", mp.lastReq)
	}
	if !mp.lastReq.Reasoning {
		t.Error("reasoning flag not forwarded")
	}

	resp := w.completion
	if resp == nil {
		t.Fatal("expected a completion to be written")
	}
	if resp.ID != "chatcmpl-fal-req-1" {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Object != api.ObjectChatCompletion || resp.Created != 1700000000 || resp.Model != req.Model {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "Hi!" || choice.Message.ReasoningContent != "greeting" || choice.FinishReason != api.FinishReasonStop {
		t.Errorf("unexpected choice: %+v", choice)
	}
	if resp.Usage.PromptTokens != nil {
		t.Error("usage should be null")
	}
}

func TestCreateCompletion_NonStreamingFreshID(t *testing.T) {
	mp := &mockProvider{result: &provider.Result{Output: "x"}}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	if err := e.CreateCompletion(context.Background(), chatRequest(false), w); err != nil {
		t.Fatalf("CreateCompletion: %v", err)
	}
	if !api.ValidateCompletionID(w.completion.ID) {
		t.Errorf("invalid id %q", w.completion.ID)
	}
}

func TestCreateCompletion_NonStreamingBackendError(t *testing.T) {
	mp := &mockProvider{result: &provider.Result{Failed: true, Error: "quota exceeded"}}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	err := e.CreateCompletion(context.Background(), chatRequest(false), w)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeBackend || apiErr.Message != "quota exceeded" {
		t.Fatalf("expected backend error, got %v", err)
	}
	if w.completion != nil {
		t.Error("no completion should be written on error")
	}
}

func TestCreateCompletion_NonStreamingTransportError(t *testing.T) {
	mp := &mockProvider{err: api.NewServerError("backend connection error: refused")}
	e := newTestEngine(t, mp)

	err := e.CreateCompletion(context.Background(), chatRequest(false), &mockResponseWriter{})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCreateCompletion_Streaming(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(nil,
		`{"output":"Hi","partial":true}`,
		`{"output":"Hi","partial":true}`,
		`{"output":"Hi there","partial":true}`,
		`{"output":"Hi there!","partial":false}`,
	)}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	if err := e.CreateCompletion(context.Background(), chatRequest(true), w); err != nil {
		t.Fatalf("CreateCompletion: %v", err)
	}

	wantDeltas := []string{"Hi", " there", "!"}
	if len(w.chunks) != len(wantDeltas) {
		t.Fatalf("got %d chunks, want %d", len(w.chunks), len(wantDeltas))
	}
	id := w.chunks[0].ID
	if !api.ValidateCompletionID(id) {
		t.Errorf("invalid chunk id %q", id)
	}
	for i, c := range w.chunks {
		if c.ID != id {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID, id)
		}
		if c.Choices[0].Delta.Content != wantDeltas[i] {
			t.Errorf("chunk %d delta = %q, want %q", i, c.Choices[0].Delta.Content, wantDeltas[i])
		}
		last := i == len(w.chunks)-1
		fr := c.Choices[0].FinishReason
		if last && (fr == nil || *fr != api.FinishReasonStop) {
			t.Errorf("final chunk finish_reason = %v, want stop", fr)
		}
		if !last && fr != nil {
			t.Errorf("chunk %d finish_reason = %q, want null", i, *fr)
		}
	}
	if w.closeCalls != 1 {
		t.Errorf("Close called %d times, want 1", w.closeCalls)
	}
}

func TestCreateCompletion_StreamingBackendError(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(nil,
		`{"output":"Hi","partial":true}`,
		`{"output":"Hi th","error":"model overloaded"}`,
		`{"output":"never","partial":false}`,
	)}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	err := e.CreateCompletion(context.Background(), chatRequest(true), w)
	if err == nil {
		t.Fatal("expected the backend error to be returned for logging")
	}

	if len(w.chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (content + error)", len(w.chunks))
	}
	errChunk := w.chunks[1]
	if errChunk.Error == nil || errChunk.Error.Message != "model overloaded" {
		t.Errorf("error chunk = %s", errChunk)
	}
	if fr := errChunk.Choices[0].FinishReason; fr == nil || *fr != api.FinishReasonError {
		t.Errorf("error chunk finish_reason = %v, want error", fr)
	}
	if w.closeCalls != 1 {
		t.Errorf("Close called %d times, want 1", w.closeCalls)
	}
}

func TestCreateCompletion_StreamingTransportError(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(api.NewServerError("SSE stream read error: reset"),
		`{"output":"partial"}`,
	)}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	e.CreateCompletion(context.Background(), chatRequest(true), w)

	if len(w.chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(w.chunks))
	}
	if w.chunks[1].Error == nil || w.chunks[1].Error.Type != api.ErrorTypeServerError {
		t.Errorf("error chunk = %s", w.chunks[1])
	}
	if w.closeCalls != 1 {
		t.Errorf("Close called %d times, want 1", w.closeCalls)
	}
}

func TestCreateCompletion_StreamOpenFailure(t *testing.T) {
	mp := &mockProvider{streamFn: func(context.Context, *provider.Request) (<-chan provider.Event, error) {
		return nil, api.NewTooManyRequestsError("backend rate limit exceeded")
	}}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{}

	e.CreateCompletion(context.Background(), chatRequest(true), w)

	if len(w.chunks) != 1 || w.chunks[0].Error == nil {
		t.Fatalf("expected a single error chunk, got %d chunks", len(w.chunks))
	}
	if w.chunks[0].Error.Type != api.ErrorTypeTooManyRequests {
		t.Errorf("error type = %q", w.chunks[0].Error.Type)
	}
	if w.closeCalls != 1 {
		t.Errorf("Close called %d times, want 1", w.closeCalls)
	}
}

func TestCreateCompletion_StreamingClientGone(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(nil, `{"output":"a"}`, `{"output":"ab"}`)}
	e := newTestEngine(t, mp)
	w := &mockResponseWriter{failWrites: true}

	if err := e.CreateCompletion(context.Background(), chatRequest(true), w); err == nil {
		t.Fatal("expected write error")
	}
	if w.closeCalls != 1 {
		t.Errorf("Close must still be attempted, got %d calls", w.closeCalls)
	}
}

func TestCreateCompletion_StreamCancelledByRegistry(t *testing.T) {
	registry := transport.NewStreamRegistry()
	started := make(chan struct{})

	mp := &mockProvider{streamFn: func(ctx context.Context, _ *provider.Request) (<-chan provider.Event, error) {
		ch := make(chan provider.Event)
		go func() {
			defer close(ch)
			close(started)
			<-ctx.Done()
		}()
		return ch, nil
	}}
	cfg := DefaultConfig()
	cfg.Streams = registry
	e, err := New(mp, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := &mockResponseWriter{}

	done := make(chan error, 1)
	go func() { done <- e.CreateCompletion(context.Background(), chatRequest(true), w) }()

	<-started
	if n := registry.CancelAll(); n != 1 {
		t.Fatalf("CancelAll = %d, want 1", n)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}

	if len(w.chunks) != 1 || w.chunks[0].Error == nil {
		t.Fatalf("expected one error chunk, got %d chunks", len(w.chunks))
	}
	if w.closeCalls != 1 {
		t.Errorf("Close called %d times, want 1", w.closeCalls)
	}
	if registry.Len() != 0 {
		t.Errorf("registry still holds %d streams", registry.Len())
	}
}

func TestListModels(t *testing.T) {
	mp := &mockProvider{models: []provider.ModelInfo{
		{ID: "anthropic/claude-3.5-sonnet", OwnedBy: "anthropic"},
		{ID: "google/gemini-pro-1.5", OwnedBy: "google"},
	}}
	e := newTestEngine(t, mp)

	list, err := e.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if list.Object != api.ObjectList || len(list.Data) != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.Data[0].Object != api.ObjectModel || list.Data[0].OwnedBy != "anthropic" {
		t.Errorf("unexpected model: %+v", list.Data[0])
	}
}
