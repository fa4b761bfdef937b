package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageContentUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"string", `"hello"`, "hello", false},
		{"null", `null`, "", false},
		{"text parts", `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"b"}]`, "ab", false},
		{"bare string parts", `["a","b"]`, "ab", false},
		{"empty array", `[]`, "", false},
		{"number", `42`, "", true},
		{"object", `{"text":"x"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c MessageContent
			err := json.Unmarshal([]byte(tt.input), &c)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got content %q", c)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if string(c) != tt.want {
				t.Errorf("content = %q, want %q", c, tt.want)
			}
		})
	}
}

func TestChatCompletionRequestDecode(t *testing.T) {
	body := `{
		"model": "anthropic/claude-3.5-sonnet",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": null},
			{"role": "tool", "content": "ignored later"}
		],
		"stream": true,
		"reasoning": true,
		"temperature": 0.2
	}`
	var req ChatCompletionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.Model != "anthropic/claude-3.5-sonnet" || !req.Stream || !req.Reasoning {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	if req.Messages[1].Content != "" {
		t.Errorf("null content = %q, want empty", req.Messages[1].Content)
	}
	if req.Messages[2].Role != "tool" {
		t.Errorf("role = %q, want tool", req.Messages[2].Role)
	}
}

func TestChatCompletionUsageIsNull(t *testing.T) {
	resp := ChatCompletion{
		ID:      "chatcmpl-1",
		Object:  ObjectChatCompletion,
		Created: 1,
		Model:   "m",
		Choices: []Choice{{Message: AssistantMessage{Role: RoleAssistant, Content: "hi"}, FinishReason: FinishReasonStop}},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"usage":{"prompt_tokens":null,"completion_tokens":null,"total_tokens":null}`) {
		t.Errorf("usage not null in %s", s)
	}
	if strings.Contains(s, "reasoning_content") {
		t.Errorf("empty reasoning_content should be omitted: %s", s)
	}
}

func TestNewChunkFinishReason(t *testing.T) {
	partial := NewChunk("chatcmpl-1", "m", 1, "Hi", "")
	data, _ := json.Marshal(partial)
	if !strings.Contains(string(data), `"finish_reason":null`) {
		t.Errorf("partial chunk should carry null finish_reason: %s", data)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("partial chunk should not carry error: %s", data)
	}

	final := NewChunk("chatcmpl-1", "m", 1, "", FinishReasonStop)
	if final.Choices[0].FinishReason == nil || *final.Choices[0].FinishReason != "stop" {
		t.Errorf("final finish_reason = %v, want stop", final.Choices[0].FinishReason)
	}
	if final.Object != ObjectChatCompletionChunk {
		t.Errorf("object = %q", final.Object)
	}
}

func TestNewErrorChunk(t *testing.T) {
	chunk := NewErrorChunk("chatcmpl-1", "m", 1, NewBackendError("quota exceeded"))
	if chunk.Choices[0].Delta.Content != "quota exceeded" {
		t.Errorf("content = %q", chunk.Choices[0].Delta.Content)
	}
	if got := *chunk.Choices[0].FinishReason; got != FinishReasonError {
		t.Errorf("finish_reason = %q, want error", got)
	}
	if !strings.Contains(chunk.String(), `"error":{"type":"backend_error","message":"quota exceeded"}`) {
		t.Errorf("embedded error missing: %s", chunk.String())
	}
}
