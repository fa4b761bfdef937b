package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// Adapter serves the OpenAI chat completions API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator transport.CompletionCreator
	lister  transport.ModelLister
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter for the given CompletionCreator and
// ModelLister. The lister may be nil, in which case GET /v1/models returns
// an empty list. Middleware is applied to the creator in the given order.
func NewAdapter(creator transport.CompletionCreator, lister transport.ModelLister, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		creator: creator,
		lister:  lister,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleCreateCompletion)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)

	return a
}

// Handle registers an additional route on the adapter's mux, for example
// health or metrics endpoints.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware assigns the request ID at the HTTP layer so it
// can be echoed in the X-Request-ID response header before any output. A
// client-supplied X-Request-ID is kept; otherwise a random UUID is used.
// The transport-level RequestID middleware then finds it in the context.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleCreateCompletion handles POST /v1/chat/completions.
func (a *Adapter) handleCreateCompletion(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	rw := newSSEResponseWriter(w)
	if err := a.creator.CreateCompletion(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(r.Context(), rw, err)
	}
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := &api.ModelList{Object: api.ObjectList, Data: []api.Model{}}
	if a.lister != nil {
		var err error
		list, err = a.lister.ListModels(r.Context())
		if err != nil {
			transport.WriteAPIError(w, transport.AsAPIError(err))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// writeHandlerError reports a handler error in whatever form the response
// still allows: nothing when it is already closed, a terminal error chunk
// plus [DONE] when a stream is in progress, and a JSON error otherwise.
func (a *Adapter) writeHandlerError(ctx context.Context, rw *sseResponseWriter, err error) {
	apiErr := transport.AsAPIError(err)

	if werr := rw.WriteError(context.WithoutCancel(ctx), apiErr); werr != nil && !errors.Is(werr, errWriterClosed) {
		slog.Debug("failed to report handler error",
			"request_id", transport.RequestIDFromContext(ctx),
			"error", werr.Error(),
		)
	}
}
