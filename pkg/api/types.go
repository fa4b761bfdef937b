package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Object type strings used on the wire.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectList                = "list"
)

// Finish reasons reported on the final choice.
const (
	FinishReasonStop  = "stop"
	FinishReasonError = "error"
)

// MessageContent is the text of a chat message. On the wire it may be a
// string, null, or an array of content parts; text parts are concatenated
// and every other part type is ignored.
type MessageContent string

// UnmarshalJSON accepts string, null and content-part array forms.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid message content")
	}
	v := gjson.ParseBytes(data)
	switch {
	case v.Type == gjson.Null:
		*c = ""
	case v.Type == gjson.String:
		*c = MessageContent(v.Str)
	case v.IsArray():
		var b strings.Builder
		for _, part := range v.Array() {
			if part.Type == gjson.String {
				b.WriteString(part.Str)
				continue
			}
			if part.Get("type").String() == "text" {
				b.WriteString(part.Get("text").String())
			}
		}
		*c = MessageContent(b.String())
	default:
		return fmt.Errorf("message content must be a string, null, or an array of parts, got %s", v.Type)
	}
	return nil
}

// ChatMessage is one role-tagged conversation message. Order in the request
// is chronological.
type ChatMessage struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// ChatCompletionRequest is the inbound body of POST /v1/chat/completions.
// Fields the backend cannot honour (temperature, tools, ...) are accepted
// and ignored.
type ChatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
	Reasoning bool          `json:"reasoning,omitempty"`
}

// ChatCompletion is the non-streaming response object.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice. The proxy always returns exactly one.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// AssistantMessage is the generated message of a non-streaming choice.
type AssistantMessage struct {
	Role             Role   `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// Usage carries token counts. The backend does not report them, so every
// field serializes as null.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// ChatCompletionChunk is one streaming frame. Error is set only on the
// terminal error chunk.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Error   *APIError     `json:"error,omitempty"`
}

// ChunkChoice is the single choice of a streaming frame. FinishReason stays
// null until the final frame.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta holds the incremental text of a streaming frame.
type ChunkDelta struct {
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content"`
}

// NewChunk builds a content frame. A non-empty finishReason marks the frame
// as final.
func NewChunk(id, model string, created int64, content, finishReason string) *ChatCompletionChunk {
	chunk := &ChatCompletionChunk{
		ID:      id,
		Object:  ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{
			Index: 0,
			Delta: ChunkDelta{Content: content},
		}},
	}
	if finishReason != "" {
		chunk.Choices[0].FinishReason = &finishReason
	}
	return chunk
}

// NewErrorChunk builds the terminal error frame: the error message is the
// delta content, finish_reason is "error" and the structured error is
// embedded alongside the choice.
func NewErrorChunk(id, model string, created int64, apiErr *APIError) *ChatCompletionChunk {
	chunk := NewChunk(id, model, created, apiErr.Message, FinishReasonError)
	chunk.Error = apiErr
	return chunk
}

// Model describes one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the GET /v1/models response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// String returns the compact JSON form, used in debug output.
func (c *ChatCompletionChunk) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unmarshalable chunk: %v>", err)
	}
	return string(data)
}
