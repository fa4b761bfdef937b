// Command mock-backend runs a deterministic stand-in for the fal.ai any-llm
// app, for local development and end-to-end testing of the proxy.
//
// It serves POST /{app} with a single JSON result and POST /{app}/stream
// with cumulative output snapshots, the way fal reports streaming progress.
// The reply depends on markers in the prompt:
//
//	[error]  - the result or final stream event carries an error payload
//	[reset]  - the stream sends one snapshot that does not extend the previous
//	otherwise - "Mock reply to: <last user turn>"
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_APP   - App path (default: fal-ai/any-llm)
//	MOCK_DELAY - Delay between stream snapshots (default: 20ms)
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func main() {
	port := envOrDefault("MOCK_PORT", "9090")
	app := strings.Trim(envOrDefault("MOCK_APP", "fal-ai/any-llm"), "/")
	delay, err := time.ParseDuration(envOrDefault("MOCK_DELAY", "20ms"))
	if err != nil {
		slog.Error("invalid MOCK_DELAY", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux(app, delay)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "app", app)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux(app string, delay time.Duration) *http.ServeMux {
	m := &mock{delay: delay}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+app, m.handleRun)
	mux.HandleFunc("POST /"+app+"/stream", m.handleStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

type mock struct {
	delay time.Duration
}

// input is the subset of the any-llm input the mock looks at.
type input struct {
	model     string
	prompt    string
	reasoning bool
}

func readInput(w http.ResponseWriter, r *http.Request) (input, bool) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Key ") {
		writeDetail(w, http.StatusUnauthorized, "missing fal key")
		return input{}, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(body) {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON input")
		return input{}, false
	}
	in := input{
		model:     gjson.GetBytes(body, "model").String(),
		prompt:    gjson.GetBytes(body, "prompt").String(),
		reasoning: gjson.GetBytes(body, "reasoning").Bool(),
	}
	if in.prompt == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "prompt is required")
		return input{}, false
	}
	return in, true
}

func (m *mock) handleRun(w http.ResponseWriter, r *http.Request) {
	in, ok := readInput(w, r)
	if !ok {
		return
	}

	result := `{}`
	result, _ = sjson.Set(result, "request_id", uuid.NewString())
	result, _ = sjson.Set(result, "partial", false)
	if strings.Contains(in.prompt, "[error]") {
		result, _ = sjson.Set(result, "output", "")
		result, _ = sjson.Set(result, "error", "mock backend error")
	} else {
		result, _ = sjson.Set(result, "output", reply(in.prompt))
	}
	if in.reasoning {
		result, _ = sjson.Set(result, "reasoning", "mock reasoning for "+in.model)
	}

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, result)
}

func (m *mock) handleStream(w http.ResponseWriter, r *http.Request) {
	in, ok := readInput(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	rc := http.NewResponseController(w)

	snapshots := cumulative(reply(in.prompt))
	if strings.Contains(in.prompt, "[reset]") && len(snapshots) > 2 {
		snapshots = append(snapshots[:2], append([]string{"Restarted: "}, snapshots[2:]...)...)
	}

	for i, snapshot := range snapshots {
		final := i == len(snapshots)-1
		event := `{}`
		event, _ = sjson.Set(event, "output", snapshot)
		event, _ = sjson.Set(event, "partial", !final)
		if final && strings.Contains(in.prompt, "[error]") {
			event, _ = sjson.Set(event, "error", map[string]any{"message": "mock backend error"})
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", event); err != nil {
			return
		}
		rc.Flush()

		if !final {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(m.delay):
			}
		}
	}
}

// reply derives the mock answer from the last user turn of the prompt.
func reply(prompt string) string {
	last := prompt
	if i := strings.LastIndex(prompt, "Human: "); i >= 0 {
		last = prompt[i+len("Human: "):]
	}
	last = strings.TrimSpace(last)
	if r := []rune(last); len(r) > 80 {
		last = string(r[:80])
	}
	return "Mock reply to: " + last
}

// cumulative returns word-by-word prefixes of text, ending with text itself.
func cumulative(text string) []string {
	var out []string
	for i, r := range text {
		if r == ' ' && i > 0 {
			out = append(out, text[:i])
		}
	}
	return append(out, text)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	body, _ := sjson.Set(`{}`, "detail", detail)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
