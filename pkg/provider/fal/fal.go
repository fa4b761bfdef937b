package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/debug"
	"github.com/dhinSgd/fal-to-openai/pkg/provider"
)

// requestIDHeader carries the fal request id on synchronous responses.
const requestIDHeader = "X-Fal-Request-Id"

// maxResultSize bounds how much of a non-streaming result body is read.
const maxResultSize = 32 << 20

// FalProvider implements provider.Provider for the fal.ai any-llm app.
type FalProvider struct {
	cfg    Config
	client *http.Client
}

// Ensure FalProvider implements provider.Provider at compile time.
var _ provider.Provider = (*FalProvider)(nil)

// New creates a new FalProvider with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*FalProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fal: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.App == "" {
		cfg.App = DefaultApp
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.App = strings.Trim(cfg.App, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &FalProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *FalProvider) Name() string {
	return "fal"
}

// Complete runs the app synchronously and parses the final result.
func (p *FalProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	body, err := p.buildBody(req)
	if err != nil {
		return nil, err
	}

	url := p.cfg.BaseURL + "/" + p.cfg.App
	httpReq, err := p.newRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}

	debug.Log("providers", "fal request", "url", url, "model", req.Model, "stream", false)
	debug.Raw("providers", string(body))

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResultSize))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to read backend response: %s", err.Error()))
	}
	debug.Raw("providers", string(data))

	result, apiErr := parseResult(data)
	if apiErr != nil {
		return nil, apiErr
	}
	if id := httpResp.Header.Get(requestIDHeader); id != "" {
		result.RequestID = id
	}
	return result, nil
}

// Stream calls the app's /stream endpoint and forwards every SSE data
// payload as an event.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (p *FalProvider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body, err := p.buildBody(req)
	if err != nil {
		return nil, err
	}

	url := p.cfg.BaseURL + "/" + p.cfg.App + "/stream"
	httpReq, err := p.newRequest(ctx, url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	debug.Log("providers", "fal request", "url", url, "model", req.Model, "stream", true)
	debug.Raw("providers", string(body))

	streamClient := &http.Client{
		Transport: p.client.Transport,
	}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := MapHTTPError(httpResp)
		httpResp.Body.Close()
		return nil, apiErr
	}

	ch := make(chan provider.Event, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		parseSSEStream(ctx, httpResp.Body, ch)
	}()

	return ch, nil
}

// ListModels returns the configured model list. fal.ai does not expose a
// listing endpoint for any-llm.
func (p *FalProvider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	models := make([]provider.ModelInfo, 0, len(p.cfg.Models))
	for _, id := range p.cfg.Models {
		models = append(models, provider.ModelInfo{
			ID:      id,
			OwnedBy: ownerOf(id),
		})
	}
	return models, nil
}

// Close releases provider resources.
func (p *FalProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *FalProvider) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+p.cfg.APIKey)
	return httpReq, nil
}

// falInput is the any-llm input schema.
type falInput struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Reasoning    bool   `json:"reasoning"`
}

// paramPath escapes sjson path syntax so an extra parameter name is always
// set as one top-level key.
var paramPath = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

// reservedFields cannot be overridden by extra parameters.
var reservedFields = []string{"model", "prompt", "system_prompt", "reasoning"}

// buildBody marshals the input and merges configured and per-request extra
// parameters. Per-request values win over configured ones.
func (p *FalProvider) buildBody(req *provider.Request) ([]byte, error) {
	body, err := json.Marshal(falInput{
		Model:        req.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Reasoning:    req.Reasoning,
	})
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	for _, extra := range []map[string]any{p.cfg.ExtraParams, req.Extra} {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if slices.Contains(reservedFields, k) {
				continue
			}
			body, err = sjson.SetBytes(body, paramPath.Replace(k), extra[k])
			if err != nil {
				return nil, api.NewServerError(fmt.Sprintf("failed to set request parameter %q: %s", k, err.Error()))
			}
		}
	}
	return body, nil
}

// parseResult reads a synchronous any-llm result. Fields of an unexpected
// type are treated as absent.
func parseResult(data []byte) (*provider.Result, *api.APIError) {
	if !gjson.ValidBytes(data) {
		return nil, api.NewServerError("failed to parse backend response: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, api.NewServerError("failed to parse backend response: expected a JSON object")
	}

	result := &provider.Result{
		Output:    stringField(doc, "output"),
		Reasoning: stringField(doc, "reasoning"),
		RequestID: stringField(doc, "request_id"),
	}
	if result.RequestID == "" {
		result.RequestID = stringField(doc, "requestId")
	}

	if payload, ok := provider.ErrorPayload(doc.Get("error")); ok {
		result.Failed = true
		result.Error = payload
	}
	return result, nil
}

func stringField(doc gjson.Result, path string) string {
	v := doc.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// ownerOf returns the vendor prefix of a "vendor/model" id.
func ownerOf(id string) string {
	if owner, _, ok := strings.Cut(id, "/"); ok {
		return owner
	}
	return "fal"
}
