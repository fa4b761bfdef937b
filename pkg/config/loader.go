package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, FALPROXY_CONFIG env, ./config.yaml, /etc/fal-to-openai/config.yaml)
//  3. Legacy environment variables
//  4. FALPROXY_* environment variables
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. FALPROXY_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/fal-to-openai/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("FALPROXY_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/fal-to-openai/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envReader collects parse errors while applying environment variables.
type envReader struct {
	errs []error
}

func (e *envReader) str(name string, dst *string) bool {
	if v := os.Getenv(name); v != "" {
		*dst = v
		return true
	}
	return false
}

func (e *envReader) integer(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", name, v))
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*dst = d
}

// applyEnvOverrides maps environment variables to config fields. The bare
// legacy names are applied first so that FALPROXY_* values win.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Legacy names.
	e.str("FAL_KEY", &cfg.Backend.APIKey)
	if e.str("API_KEY", &cfg.Auth.APIKey) && cfg.Auth.Type == "none" {
		cfg.Auth.Type = "apikey"
	}
	e.integer("PORT", &cfg.Server.Port)
	e.integer("SYSTEM_PROMPT_LIMIT", &cfg.Prompt.SystemLimit)
	e.integer("PROMPT_LIMIT", &cfg.Prompt.PromptLimit)

	e.integer("FALPROXY_PORT", &cfg.Server.Port)
	e.duration("FALPROXY_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.str("FALPROXY_BACKEND_URL", &cfg.Backend.BaseURL)
	e.str("FALPROXY_BACKEND_APP", &cfg.Backend.App)
	e.str("FALPROXY_BACKEND_API_KEY", &cfg.Backend.APIKey)
	e.duration("FALPROXY_BACKEND_TIMEOUT", &cfg.Backend.Timeout)
	if v := os.Getenv("FALPROXY_MODELS"); v != "" {
		cfg.Backend.Models = splitList(v)
	}
	e.integer("FALPROXY_SYSTEM_PROMPT_LIMIT", &cfg.Prompt.SystemLimit)
	e.integer("FALPROXY_PROMPT_LIMIT", &cfg.Prompt.PromptLimit)
	e.str("FALPROXY_AUTH_TYPE", &cfg.Auth.Type)
	e.str("FALPROXY_JWT_SECRET", &cfg.Auth.JWT.Secret)
	e.integer("FALPROXY_RATE_LIMIT_RPM", &cfg.Auth.RateLimit.DefaultRPM)

	// FALPROXY_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("FALPROXY_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("FALPROXY_API_KEYS: %w", err))
		} else {
			cfg.Auth.APIKeys = keys
		}
	}

	return errors.Join(e.errs...)
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		path  string
		file  string
		value *string
	}{
		{"backend.api_key_file", cfg.Backend.APIKeyFile, &cfg.Backend.APIKey},
		{"auth.api_key_file", cfg.Auth.APIKeyFile, &cfg.Auth.APIKey},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		refs = append(refs, struct {
			path  string
			file  string
			value *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), cfg.Auth.APIKeys[i].KeyFile, &cfg.Auth.APIKeys[i].Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.path, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
