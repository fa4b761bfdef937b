package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/debug"
	"github.com/dhinSgd/fal-to-openai/pkg/observability"
	"github.com/dhinSgd/fal-to-openai/pkg/provider"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
)

// streamCompletion relays one backend stream as chat.completion.chunk
// frames. The writer is closed on every exit path, so the [DONE]
// terminator is always attempted.
//
// Backend failures after the stream was requested are reported in-band as
// one terminal error chunk. The returned error is for logging only; by the
// time it is returned the response is already complete.
func (e *Engine) streamCompletion(ctx context.Context, req *api.ChatCompletionRequest, provReq *provider.Request, w transport.ResponseWriter) error {
	defer w.Close()

	s := &chunkStream{
		id:      api.NewCompletionID(),
		model:   req.Model,
		created: e.now().Unix(),
		w:       w,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.cfg.Streams != nil {
		e.cfg.Streams.Register(s.id, cancel)
		defer e.cfg.Streams.Remove(s.id)
	}

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	start := time.Now()
	eventCh, err := e.provider.Stream(ctx, provReq)
	if err != nil {
		e.recordProvider(req.Model, "error", start)
		apiErr := transport.AsAPIError(err)
		s.fail(ctx, apiErr)
		return apiErr
	}

	status, err := s.consume(ctx, eventCh)
	e.recordProvider(req.Model, status, start)
	return err
}

// chunkStream holds the per-request state of one outbound stream.
type chunkStream struct {
	id      string
	model   string
	created int64
	w       transport.ResponseWriter
	deltas  DeltaReconstructor
}

// consume reads events until the channel closes, the backend reports an
// error, or ctx is cancelled. It returns the provider status label.
func (s *chunkStream) consume(ctx context.Context, eventCh <-chan provider.Event) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return s.cancelled(ctx)

		case ev, ok := <-eventCh:
			if !ok {
				// The provider also closes the channel on cancellation.
				if ctx.Err() != nil {
					return s.cancelled(ctx)
				}
				return "success", nil
			}
			if ev.Err != nil {
				apiErr := transport.AsAPIError(ev.Err)
				s.fail(ctx, apiErr)
				return "error", apiErr
			}

			chunk, emit := s.deltas.Next(ev.Data)
			if !emit {
				continue
			}
			if chunk.Failed {
				apiErr := api.NewBackendError(chunk.Error)
				s.fail(ctx, apiErr)
				return "backend_error", apiErr
			}

			finish := ""
			kind := "content"
			if chunk.Final {
				finish = api.FinishReasonStop
				kind = "final"
			}
			out := api.NewChunk(s.id, s.model, s.created, chunk.Delta, finish)
			if err := s.w.WriteChunk(ctx, out); err != nil {
				// The client is gone; nothing more can be delivered.
				return "cancelled", err
			}
			observability.StreamChunksTotal.WithLabelValues(s.model, kind).Inc()
			debug.Trace("streaming", "chunk", "id", s.id, "delta", debug.Truncate(chunk.Delta, 200), "final", chunk.Final)
		}
	}
}

func (s *chunkStream) cancelled(ctx context.Context) (string, error) {
	s.fail(ctx, api.NewServerError("stream cancelled: "+context.Cause(ctx).Error()))
	return "cancelled", ctx.Err()
}

// fail writes one terminal error chunk. The write is best effort: it is
// attempted even after ctx was cancelled, and a failure is only logged.
func (s *chunkStream) fail(ctx context.Context, apiErr *api.APIError) {
	chunk := api.NewErrorChunk(s.id, s.model, s.created, apiErr)
	if err := s.w.WriteChunk(context.WithoutCancel(ctx), chunk); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Debug("failed to write error chunk", "id", s.id, "error", err.Error())
		}
		return
	}
	observability.StreamChunksTotal.WithLabelValues(s.model, "error").Inc()
}
