package fal

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/debug"
	"github.com/dhinSgd/fal-to-openai/pkg/provider"
)

// maxEventSize bounds a single SSE line. Cumulative snapshots grow with the
// output, so the scanner default of 64KiB is too small.
const maxEventSize = 8 << 20

// parseSSEStream reads fal SSE events from body and sends each data payload
// on ch, in order. The channel is NOT closed by this function; the caller
// is responsible for closing it.
//
// SSE format expected:
//
//	data: {"output":"Hi","partial":true}\n
//	\n
//
// Lines that are not data lines (comments, event names, blank separators)
// are ignored. Payloads that are not valid JSON are logged and skipped.
// Context cancellation stops reading immediately.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		if !gjson.Valid(payload) {
			slog.Warn("skipping malformed SSE event",
				"data", debug.Truncate(payload, 200),
			)
			continue
		}

		debug.Trace("streaming", "fal event", "data", debug.Truncate(payload, 500))

		select {
		case ch <- provider.Event{Data: []byte(payload)}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		select {
		case ch <- provider.Event{Err: api.NewServerError("SSE stream read error: " + err.Error())}:
		case <-ctx.Done():
		}
	}
}
