package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/debug"
	"github.com/dhinSgd/fal-to-openai/pkg/observability"
	"github.com/dhinSgd/fal-to-openai/pkg/provider"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// Engine orchestrates request processing between the transport layer
// and the provider backend.
type Engine struct {
	provider provider.Provider
	cfg      Config
	started  int64

	// now is replaced in tests.
	now func() time.Time
}

// Ensure Engine implements the transport handler contracts at compile time.
var (
	_ transport.CompletionCreator = (*Engine)(nil)
	_ transport.ModelLister       = (*Engine)(nil)
)

// New creates a new Engine. The provider must not be nil.
func New(p provider.Provider, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if cfg.Budgets.System < 0 || cfg.Budgets.Prompt < 0 {
		return nil, fmt.Errorf("engine: budgets must not be negative")
	}
	return &Engine{
		provider: p,
		cfg:      cfg,
		started:  time.Now().Unix(),
		now:      time.Now,
	}, nil
}

// CreateCompletion validates the request, composes the backend prompt and
// writes either a complete chat.completion or a chunk stream to w.
func (e *Engine) CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	if apiErr := api.ValidateRequest(req, e.cfg.Validation); apiErr != nil {
		return apiErr
	}

	composed := Compose(req.Messages, e.cfg.Budgets)
	recordComposition(composed)
	debug.Log("engine", "composed prompt",
		"model", req.Model,
		"system_prompt_len", len(composed.SystemPrompt),
		"prompt_len", len(composed.Prompt),
		"system_truncated", composed.SystemTruncated,
		"dropped_blocks", composed.DroppedBlocks,
	)

	provReq := &provider.Request{
		Model:        req.Model,
		SystemPrompt: composed.SystemPrompt,
		Prompt:       composed.Prompt,
		Reasoning:    req.Reasoning,
	}

	if req.Stream {
		return e.streamCompletion(ctx, req, provReq, w)
	}
	return e.complete(ctx, req, provReq, w)
}

// complete performs a single non-streaming backend call.
func (e *Engine) complete(ctx context.Context, req *api.ChatCompletionRequest, provReq *provider.Request, w transport.ResponseWriter) error {
	start := time.Now()
	res, err := e.provider.Complete(ctx, provReq)
	if err != nil {
		e.recordProvider(req.Model, "error", start)
		return err
	}
	if res.Failed {
		e.recordProvider(req.Model, "backend_error", start)
		return api.NewBackendError(res.Error)
	}
	e.recordProvider(req.Model, "success", start)

	resp := &api.ChatCompletion{
		ID:      api.CompletionIDFor(res.RequestID),
		Object:  api.ObjectChatCompletion,
		Created: e.now().Unix(),
		Model:   req.Model,
		Choices: []api.Choice{{
			Index: 0,
			Message: api.AssistantMessage{
				Role:             api.RoleAssistant,
				Content:          res.Output,
				ReasoningContent: res.Reasoning,
			},
			FinishReason: api.FinishReasonStop,
		}},
	}
	return w.WriteCompletion(ctx, resp)
}

// ListModels returns the provider's models as an OpenAI model list.
func (e *Engine) ListModels(ctx context.Context) (*api.ModelList, error) {
	models, err := e.provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	list := &api.ModelList{
		Object: api.ObjectList,
		Data:   make([]api.Model, 0, len(models)),
	}
	for _, m := range models {
		list.Data = append(list.Data, api.Model{
			ID:      m.ID,
			Object:  api.ObjectModel,
			Created: e.started,
			OwnedBy: m.OwnedBy,
		})
	}
	return list, nil
}

func recordComposition(c ComposedPrompt) {
	if c.SystemTruncated {
		observability.PromptTruncationsTotal.Inc()
	}
	observability.PromptDroppedBlocksTotal.Add(float64(c.DroppedBlocks))
	observability.PromptSkippedMessagesTotal.Add(float64(c.SkippedMessages))
}

func (e *Engine) recordProvider(model, status string, start time.Time) {
	provName := e.provider.Name()
	observability.ProviderRequestsTotal.WithLabelValues(provName, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(provName, model).Observe(time.Since(start).Seconds())
}
