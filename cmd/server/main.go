// Command server runs the fal-to-openai proxy: an OpenAI-compatible chat
// completions API backed by the fal.ai any-llm app.
//
// Configuration is read from a YAML file (-config, FALPROXY_CONFIG,
// ./config.yaml or /etc/fal-to-openai/config.yaml) and environment
// variables:
//
//	FAL_KEY              - fal.ai API key (required)
//	API_KEY              - bearer token clients must present (optional)
//	PORT                 - listen port (default: 8080)
//	SYSTEM_PROMPT_LIMIT  - system prompt budget in characters (default: 4800)
//	PROMPT_LIMIT         - prompt budget in characters (default: 4800)
//
// Every setting also has a FALPROXY_* form; see pkg/config.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/dhinSgd/fal-to-openai/pkg/api"
	"github.com/dhinSgd/fal-to-openai/pkg/auth"
	"github.com/dhinSgd/fal-to-openai/pkg/auth/apikey"
	"github.com/dhinSgd/fal-to-openai/pkg/auth/jwt"
	"github.com/dhinSgd/fal-to-openai/pkg/auth/noop"
	"github.com/dhinSgd/fal-to-openai/pkg/config"
	"github.com/dhinSgd/fal-to-openai/pkg/debug"
	"github.com/dhinSgd/fal-to-openai/pkg/engine"
	"github.com/dhinSgd/fal-to-openai/pkg/observability"
	"github.com/dhinSgd/fal-to-openai/pkg/provider/fal"
	"github.com/dhinSgd/fal-to-openai/pkg/transport"
	transporthttp "github.com/dhinSgd/fal-to-openai/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	debug.Log("config", "configuration loaded",
		"backend", cfg.Backend.BaseURL+"/"+cfg.Backend.App,
		"auth", cfg.Auth.Type,
		"system_limit", cfg.Prompt.SystemLimit,
		"prompt_limit", cfg.Prompt.PromptLimit,
		"models", len(cfg.Backend.Models),
	)

	srv, closeFn, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	slog.Info("fal-to-openai proxy",
		"port", cfg.Server.Port,
		"app", cfg.Backend.App,
		"auth", cfg.Auth.Type,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	return srv.ListenAndServe()
}

// newServer assembles the provider, engine, auth chain and HTTP server. The
// returned function releases the provider.
func newServer(cfg *config.Config) (*transporthttp.Server, func(), error) {
	prov, err := fal.New(fal.Config{
		BaseURL:     cfg.Backend.BaseURL,
		App:         cfg.Backend.App,
		APIKey:      cfg.Backend.APIKey,
		Timeout:     cfg.Backend.Timeout,
		Models:      cfg.Backend.Models,
		ExtraParams: cfg.Backend.ExtraParams,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating provider: %w", err)
	}

	streams := transport.NewStreamRegistry()
	eng, err := engine.New(prov, engine.Config{
		Budgets: engine.Budgets{
			System: cfg.Prompt.SystemLimit,
			Prompt: cfg.Prompt.PromptLimit,
		},
		Validation: api.ValidationConfig{MaxMessages: cfg.Server.MaxMessages},
		Streams:    streams,
	})
	if err != nil {
		prov.Close()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}

	authMW, err := newAuthMiddleware(cfg)
	if err != nil {
		prov.Close()
		return nil, nil, fmt.Errorf("configuring auth: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithStreams(streams),
		transporthttp.WithRoute("GET /healthz", http.HandlerFunc(healthz)),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts,
			transporthttp.WithRoute("GET "+cfg.Observability.Metrics.Path, observability.Handler()),
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
		)
	}
	opts = append(opts, transporthttp.WithHTTPMiddleware(authMW))

	return transporthttp.NewServer(eng, eng, opts...), func() { prov.Close() }, nil
}

// newAuthMiddleware builds the authenticator chain for auth.type. The
// health and metrics endpoints are never authenticated.
func newAuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys)+1)
		if cfg.Auth.APIKey != "" {
			entries = append(entries, apikey.RawKeyEntry{
				Key:      cfg.Auth.APIKey,
				Identity: auth.Identity{Subject: "client", ServiceTier: "default"},
			})
		}
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		authn, err := jwt.New(jwt.Config{
			Secret:      []byte(cfg.Auth.JWT.Secret),
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			UserClaim:   cfg.Auth.JWT.UserClaim,
			TierClaim:   cfg.Auth.JWT.TierClaim,
			ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			Leeway:      cfg.Auth.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{authn}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
		for name, rpm := range rl.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, rl.DefaultRPM)
	}

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if path := cfg.Observability.Metrics.Path; path != "" {
		bypass = append(bypass, path)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
