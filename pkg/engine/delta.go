package engine

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dhinSgd/fal-to-openai/pkg/provider"
)

// Chunk is one unit produced by the DeltaReconstructor.
type Chunk struct {
	// Delta is the text appended since the previous snapshot.
	Delta string

	// Final is set when the event was explicitly marked non-partial.
	Final bool

	// Failed is set when the event carried an error payload. The stream
	// must not be consumed further.
	Failed bool

	// Error is the error payload as text.
	Error string
}

// DeltaReconstructor turns cumulative output snapshots into incremental
// deltas. It holds per-stream state and must not be shared between
// streams or used concurrently.
type DeltaReconstructor struct {
	previous string
}

// Next consumes one backend event and reports whether a chunk should be
// emitted for it. Events whose output does not extend the previous
// snapshot are emitted in full and become the new baseline.
func (d *DeltaReconstructor) Next(event []byte) (Chunk, bool) {
	doc := gjson.ParseBytes(event)

	if payload, ok := provider.ErrorPayload(doc.Get("error")); ok {
		return Chunk{Failed: true, Error: payload}, true
	}

	var current string
	if v := doc.Get("output"); v.Type == gjson.String {
		current = v.Str
	}

	partial := true
	if v := doc.Get("partial"); v.IsBool() {
		partial = v.Bool()
	}

	var delta string
	if strings.HasPrefix(current, d.previous) {
		delta = current[len(d.previous):]
	} else if current != "" {
		d.previous = ""
		delta = current
	}
	d.previous = current

	if delta == "" && partial {
		return Chunk{}, false
	}
	return Chunk{Delta: delta, Final: !partial}, true
}
