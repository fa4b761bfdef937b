// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the fal-to-openai proxy.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falproxy_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method, route
	// and whether the response was streamed.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "falproxy_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route", "stream"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "falproxy_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts requests sent to the completion backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falproxy_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend latency in seconds. For streams this is
	// the time until the stream ended.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "falproxy_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// PromptTruncationsTotal counts requests whose fixed system text was cut
	// to the system budget.
	PromptTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "falproxy_prompt_truncations_total",
			Help: "Fixed system text truncations",
		},
	)

	// PromptDroppedBlocksTotal counts conversation blocks that fit neither slot.
	PromptDroppedBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "falproxy_prompt_dropped_blocks_total",
			Help: "Conversation blocks dropped from the prompt",
		},
	)

	// PromptSkippedMessagesTotal counts messages with an unsupported role.
	PromptSkippedMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "falproxy_prompt_skipped_messages_total",
			Help: "Messages skipped for an unsupported role",
		},
	)

	// StreamChunksTotal counts emitted completion chunks by kind
	// (content, final, error).
	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falproxy_stream_chunks_total",
			Help: "Emitted stream chunks",
		},
		[]string{"model", "kind"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "falproxy_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		PromptTruncationsTotal,
		PromptDroppedBlocksTotal,
		PromptSkippedMessagesTotal,
		StreamChunksTotal,
		RateLimitRejectedTotal,
	)
}
